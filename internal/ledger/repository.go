package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
)

// Store executes lot operations against a pool or a caller-owned transaction.
// The receiving engine binds a Store to its post/reverse transaction so lot
// writes commit atomically with the receipt and PO updates.
type Store struct {
	db db.DBTX
}

// NewStore constructs a Store bound to the given pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// CreateLot inserts a lot and returns its id.
func (s *Store) CreateLot(ctx context.Context, lot Lot) (int64, error) {
	const query = `
		INSERT INTO inventory_lots
			(sku_id, location_id, receipt_id, receipt_line_id, fifo_sequence,
			 original_qty, remaining_qty, unit_cost, batch_no, expiry_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	var id int64
	err := s.db.QueryRow(ctx, query,
		lot.SKUID, lot.LocationID, lot.ReceiptID, lot.ReceiptLineID, lot.FifoSequence,
		lot.OriginalQty, lot.RemainingQty, lot.UnitCost, lot.BatchNo, lot.ExpiryDate,
		LotStatusActive,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: create lot: %w", err)
	}
	return id, nil
}

// LotsByReceipt returns every lot created by a receipt, locked for update.
func (s *Store) LotsByReceipt(ctx context.Context, receiptID int64) ([]Lot, error) {
	const query = lotColumns + `
		FROM inventory_lots
		WHERE receipt_id = $1
		ORDER BY fifo_sequence
		FOR UPDATE`
	rows, err := s.db.Query(ctx, query, receiptID)
	if err != nil {
		return nil, fmt.Errorf("ledger: lots by receipt: %w", err)
	}
	defer rows.Close()
	return scanLots(rows)
}

// ReverseLotsByReceipt tombstones every lot a receipt created. It fails with
// ErrLotConsumed when any lot's remaining quantity differs from its original.
func (s *Store) ReverseLotsByReceipt(ctx context.Context, receiptID int64) ([]Lot, error) {
	lots, err := s.LotsByReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	for _, lot := range lots {
		if lot.Status != LotStatusActive {
			return nil, fmt.Errorf("lot %d: %w", lot.ID, ErrLotReversed)
		}
		if lot.RemainingQty != lot.OriginalQty {
			return nil, fmt.Errorf("lot %d: %w", lot.ID, ErrLotConsumed)
		}
	}
	const query = `
		UPDATE inventory_lots
		SET status = $2, remaining_qty = 0
		WHERE receipt_id = $1`
	if _, err := s.db.Exec(ctx, query, receiptID, LotStatusReversed); err != nil {
		return nil, fmt.Errorf("ledger: reverse lots: %w", err)
	}
	return lots, nil
}

// GetLotForUpdate fetches a single lot with a row lock.
func (s *Store) GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	const query = lotColumns + `
		FROM inventory_lots
		WHERE id = $1
		FOR UPDATE`
	var lot Lot
	err := s.db.QueryRow(ctx, query, lotID).Scan(
		&lot.ID, &lot.SKUID, &lot.LocationID, &lot.ReceiptID, &lot.ReceiptLineID,
		&lot.FifoSequence, &lot.OriginalQty, &lot.RemainingQty, &lot.UnitCost,
		&lot.BatchNo, &lot.ExpiryDate, &lot.Status, &lot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, fmt.Errorf("ledger: get lot: %w", err)
	}
	return lot, nil
}

// SetRemaining updates a lot's remaining quantity after consumption.
func (s *Store) SetRemaining(ctx context.Context, lotID int64, remaining float64) error {
	if _, err := s.db.Exec(ctx, `UPDATE inventory_lots SET remaining_qty = $2 WHERE id = $1`, lotID, remaining); err != nil {
		return fmt.Errorf("ledger: set remaining: %w", err)
	}
	return nil
}

// ListBySKULocation returns lots ordered by FIFO sequence ascending. This
// ordering is the contract downstream consumption relies on.
func (s *Store) ListBySKULocation(ctx context.Context, skuID, locationID int64, activeOnly bool) ([]Lot, error) {
	query := lotColumns + `
		FROM inventory_lots
		WHERE sku_id = $1 AND location_id = $2`
	if activeOnly {
		query += ` AND status = 'ACTIVE'`
	}
	query += ` ORDER BY fifo_sequence`
	rows, err := s.db.Query(ctx, query, skuID, locationID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list lots: %w", err)
	}
	defer rows.Close()
	return scanLots(rows)
}

const lotColumns = `
		SELECT id, sku_id, location_id, receipt_id, receipt_line_id, fifo_sequence,
		       original_qty, remaining_qty, unit_cost, batch_no, expiry_date, status, created_at`

func scanLots(rows pgx.Rows) ([]Lot, error) {
	var lots []Lot
	for rows.Next() {
		var lot Lot
		if err := rows.Scan(
			&lot.ID, &lot.SKUID, &lot.LocationID, &lot.ReceiptID, &lot.ReceiptLineID,
			&lot.FifoSequence, &lot.OriginalQty, &lot.RemainingQty, &lot.UnitCost,
			&lot.BatchNo, &lot.ExpiryDate, &lot.Status, &lot.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// Repository wraps pool-scoped reads and consumption transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListBySKULocation reads lots outside any transaction.
func (r *Repository) ListBySKULocation(ctx context.Context, skuID, locationID int64, activeOnly bool) ([]Lot, error) {
	return NewStore(r.pool).ListBySKULocation(ctx, skuID, locationID, activeOnly)
}

// WithTx executes fn against a tx-bound Store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}
