package po

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
)

// Store executes purchase order queries against a pool or transaction.
type Store struct {
	db db.DBTX
}

// NewStore constructs a Store bound to the given pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

func (s *Store) GetLineForUpdate(ctx context.Context, lineID int64) (Line, error) {
	const query = `
		SELECT id, po_id, sku_id, ordered_qty, received_qty, price, note
		FROM purchase_order_lines
		WHERE id = $1
		FOR UPDATE`
	var line Line
	err := s.db.QueryRow(ctx, query, lineID).Scan(
		&line.ID, &line.POID, &line.SKUID, &line.OrderedQty, &line.ReceivedQty, &line.Price, &line.Note,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, ErrLineNotFound
		}
		return Line{}, fmt.Errorf("po: get line: %w", err)
	}
	return line, nil
}

func (s *Store) SetLineReceived(ctx context.Context, lineID int64, received float64) error {
	tag, err := s.db.Exec(ctx, `UPDATE purchase_order_lines SET received_qty = $2 WHERE id = $1`, lineID, received)
	if err != nil {
		return fmt.Errorf("po: set line received: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (s *Store) GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error) {
	const query = `
		SELECT id, number, supplier_id, status, expected_date, note, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1
		FOR UPDATE`
	return s.scanPO(s.db.QueryRow(ctx, query, poID))
}

// GetPO reads a purchase order without locking.
func (s *Store) GetPO(ctx context.Context, poID int64) (PurchaseOrder, error) {
	const query = `
		SELECT id, number, supplier_id, status, expected_date, note, created_at, updated_at
		FROM purchase_orders
		WHERE id = $1`
	return s.scanPO(s.db.QueryRow(ctx, query, poID))
}

func (s *Store) scanPO(row pgx.Row) (PurchaseOrder, error) {
	var order PurchaseOrder
	err := row.Scan(
		&order.ID, &order.Number, &order.SupplierID, &order.Status,
		&order.ExpectedDate, &order.Note, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, fmt.Errorf("po: get order: %w", err)
	}
	return order, nil
}

func (s *Store) LinesByPO(ctx context.Context, poID int64) ([]Line, error) {
	const query = `
		SELECT id, po_id, sku_id, ordered_qty, received_qty, price, note
		FROM purchase_order_lines
		WHERE po_id = $1
		ORDER BY id`
	rows, err := s.db.Query(ctx, query, poID)
	if err != nil {
		return nil, fmt.Errorf("po: lines by po: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.POID, &line.SKUID, &line.OrderedQty, &line.ReceivedQty, &line.Price, &line.Note); err != nil {
			return nil, fmt.Errorf("po: scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) SetPOStatus(ctx context.Context, poID int64, status Status) error {
	tag, err := s.db.Exec(ctx, `UPDATE purchase_orders SET status = $2, updated_at = NOW() WHERE id = $1`, poID, status)
	if err != nil {
		return fmt.Errorf("po: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

// CreatePO inserts a header and returns its id.
func (s *Store) CreatePO(ctx context.Context, order PurchaseOrder) (int64, error) {
	const query = `
		INSERT INTO purchase_orders (number, supplier_id, status, expected_date, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	var id int64
	err := s.db.QueryRow(ctx, query, order.Number, order.SupplierID, order.Status, order.ExpectedDate, order.Note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("po: create order: %w", err)
	}
	return id, nil
}

// InsertLine inserts a line and returns its id.
func (s *Store) InsertLine(ctx context.Context, line Line) (int64, error) {
	const query = `
		INSERT INTO purchase_order_lines (po_id, sku_id, ordered_qty, received_qty, price, note)
		VALUES ($1, $2, $3, 0, $4, $5)
		RETURNING id`
	var id int64
	err := s.db.QueryRow(ctx, query, line.POID, line.SKUID, line.OrderedQty, line.Price, line.Note).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("po: insert line: %w", err)
	}
	return id, nil
}

// Repository wraps pool-scoped reads and transactions for the PO service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPO reads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, poID int64) (PurchaseOrder, []Line, error) {
	store := NewStore(r.pool)
	order, err := store.GetPO(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := store.LinesByPO(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return order, lines, nil
}

// List returns purchase orders newest-first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]PurchaseOrder, int, error) {
	if limit <= 0 {
		limit = 20
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, supplier_id, status, expected_date, note, created_at, updated_at
		FROM purchase_orders
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		var order PurchaseOrder
		if err := rows.Scan(&order.ID, &order.Number, &order.SupplierID, &order.Status, &order.ExpectedDate, &order.Note, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	return orders, total, rows.Err()
}

// WithTx executes fn against a tx-bound Store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxWriter) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}
