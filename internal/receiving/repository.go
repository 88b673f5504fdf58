package receiving

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/platform/db"
	"github.com/meridian-wms/meridian-wms/internal/po"
	"github.com/meridian-wms/meridian-wms/internal/sequence"
)

const receiptColumns = `id, gr_no, po_id, asn_ref, movement_type, status, location_id,
	total_qty, total_value, received_at, posted_at, reversed_at, note, version,
	created_by, created_at, updated_at`

const lineColumns = `id, receipt_id, sku_id, po_line_id, expected_qty, received_qty,
	accepted_qty, rejected_qty, batch_no, mfg_date, expiry_date, cost_price, mrp,
	bin_code, qc_status, fifo_sequence, line_order, created_at, updated_at`

// Repository persists goods receipts in Postgres. Mutations that must be
// atomic across receipts, lots, sequences and purchase orders run through
// WithTx, which binds the sibling stores to the same transaction.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in one database transaction. Every store handed to fn
// shares that transaction, so fn either fully commits or leaves nothing.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			tx:   tx,
			lots: ledger.NewStore(tx),
			seq:  sequence.NewStore(tx),
			po:   po.NewStore(tx),
		})
	})
}

// CreateReceipt inserts a new draft header.
func (r *Repository) CreateReceipt(ctx context.Context, receipt GoodsReceipt) (GoodsReceipt, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO goods_receipts (gr_no, po_id, asn_ref, movement_type, status, location_id,
			total_qty, total_value, note, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, 1, $8, now(), now())
		RETURNING id, version, created_at, updated_at`,
		receipt.GRNo, receipt.POID, receipt.ASNRef, receipt.MovementType, receipt.Status,
		receipt.LocationID, receipt.Note, receipt.CreatedBy,
	).Scan(&receipt.ID, &receipt.Version, &receipt.CreatedAt, &receipt.UpdatedAt)
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("insert receipt: %w", err)
	}
	receipt.TotalValue = decimal.Zero
	return receipt, nil
}

// GetReceipt loads a receipt with its lines.
func (r *Repository) GetReceipt(ctx context.Context, id int64) (GoodsReceipt, error) {
	receipt, err := scanReceipt(r.pool.QueryRow(ctx,
		`SELECT `+receiptColumns+` FROM goods_receipts WHERE id = $1`, id))
	if err != nil {
		return GoodsReceipt{}, err
	}
	receipt.Lines, err = queryLines(ctx, r.pool, id)
	if err != nil {
		return GoodsReceipt{}, err
	}
	return receipt, nil
}

// List returns receipts matching the filter, newest first, plus a total count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.POID > 0 {
		where += fmt.Sprintf(" AND po_id = $%d", idx)
		args = append(args, filter.POID)
		idx++
	}
	if filter.LocationID > 0 {
		where += fmt.Sprintf(" AND location_id = $%d", idx)
		args = append(args, filter.LocationID)
		idx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM goods_receipts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count receipts: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM goods_receipts %s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		receiptColumns, where, idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]GoodsReceipt, 0)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		receipts = append(receipts, receipt)
	}
	return receipts, total, rows.Err()
}

// txRepo is the transaction-bound view of the repository. The ledger,
// sequence and purchase order stores ride the same pgx transaction.
type txRepo struct {
	tx   pgx.Tx
	lots *ledger.Store
	seq  *sequence.Store
	po   *po.Store
}

func (t *txRepo) GetReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return scanReceipt(t.tx.QueryRow(ctx,
		`SELECT `+receiptColumns+` FROM goods_receipts WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) GetLines(ctx context.Context, receiptID int64) ([]GoodsReceiptLine, error) {
	return queryLines(ctx, t.tx, receiptID)
}

// UpdateStatus advances the receipt and bumps its version. A stale version
// means a concurrent writer won; the caller surfaces that as a conflict.
func (t *txRepo) UpdateStatus(ctx context.Context, id, version int64, status Status, at time.Time) error {
	column := ""
	switch status {
	case StatusReceiving:
		column = ", received_at = $4"
	case StatusPosted:
		column = ", posted_at = $4"
	case StatusReversed:
		column = ", reversed_at = $4"
	}
	args := []any{id, version, status}
	if column != "" {
		args = append(args, at)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE goods_receipts SET status = $3, version = version + 1, updated_at = now()`+column+`
		 WHERE id = $1 AND version = $2`, args...)
	if err != nil {
		return fmt.Errorf("update receipt status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *txRepo) SetAggregates(ctx context.Context, receiptID int64, totalQty float64, totalValue decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE goods_receipts SET total_qty = $2, total_value = $3, updated_at = now() WHERE id = $1`,
		receiptID, totalQty, totalValue)
	if err != nil {
		return fmt.Errorf("update receipt aggregates: %w", err)
	}
	return nil
}

func (t *txRepo) InsertLine(ctx context.Context, line GoodsReceiptLine) (GoodsReceiptLine, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO goods_receipt_lines (receipt_id, sku_id, po_line_id, expected_qty,
			received_qty, accepted_qty, rejected_qty, batch_no, mfg_date, expiry_date,
			cost_price, mrp, bin_code, qc_status, line_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			(SELECT COALESCE(MAX(line_order), 0) + 1 FROM goods_receipt_lines WHERE receipt_id = $1),
			now(), now())
		RETURNING id, line_order, created_at, updated_at`,
		line.ReceiptID, line.SKUID, line.POLineID, line.ExpectedQty,
		line.ReceivedQty, line.AcceptedQty, line.RejectedQty, line.BatchNo,
		line.MfgDate, line.ExpiryDate, line.CostPrice, line.MRP, line.BinCode, line.QCStatus,
	).Scan(&line.ID, &line.LineOrder, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		return GoodsReceiptLine{}, fmt.Errorf("insert receipt line: %w", err)
	}
	return line, nil
}

func (t *txRepo) UpdateLine(ctx context.Context, line GoodsReceiptLine) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE goods_receipt_lines SET sku_id = $3, po_line_id = $4, expected_qty = $5,
			received_qty = $6, accepted_qty = $7, rejected_qty = $8, batch_no = $9,
			mfg_date = $10, expiry_date = $11, cost_price = $12, mrp = $13, bin_code = $14,
			qc_status = $15, updated_at = now()
		WHERE id = $1 AND receipt_id = $2`,
		line.ID, line.ReceiptID, line.SKUID, line.POLineID, line.ExpectedQty,
		line.ReceivedQty, line.AcceptedQty, line.RejectedQty, line.BatchNo,
		line.MfgDate, line.ExpiryDate, line.CostPrice, line.MRP, line.BinCode, line.QCStatus)
	if err != nil {
		return fmt.Errorf("update receipt line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (t *txRepo) DeleteLine(ctx context.Context, receiptID, lineID int64) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM goods_receipt_lines WHERE id = $1 AND receipt_id = $2`, lineID, receiptID)
	if err != nil {
		return fmt.Errorf("delete receipt line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (t *txRepo) SetLineSequence(ctx context.Context, lineID, seq int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE goods_receipt_lines SET fifo_sequence = $2, updated_at = now() WHERE id = $1`,
		lineID, seq)
	if err != nil {
		return fmt.Errorf("set line fifo sequence: %w", err)
	}
	return nil
}

func (t *txRepo) InsertMovement(ctx context.Context, m Movement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO receipt_movements (receipt_id, ref_uuid, movement_type, total_qty, total_value, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ReceiptID, m.RefID, m.Type, m.TotalQty, m.TotalValue, m.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (t *txRepo) NextSequence(ctx context.Context, skuID, locationID int64) (int64, error) {
	return t.seq.Next(ctx, skuID, locationID)
}

func (t *txRepo) CreateLot(ctx context.Context, lot ledger.Lot) (int64, error) {
	return t.lots.CreateLot(ctx, lot)
}

func (t *txRepo) ReverseLots(ctx context.Context, receiptID int64) ([]ledger.Lot, error) {
	return t.lots.ReverseLotsByReceipt(ctx, receiptID)
}

func (t *txRepo) ApplyPODelta(ctx context.Context, poLineID int64, delta float64) (po.ApplyResult, error) {
	return po.ApplyReceipt(ctx, t.po, poLineID, delta)
}

func scanReceipt(row pgx.Row) (GoodsReceipt, error) {
	var r GoodsReceipt
	err := row.Scan(&r.ID, &r.GRNo, &r.POID, &r.ASNRef, &r.MovementType, &r.Status,
		&r.LocationID, &r.TotalQty, &r.TotalValue, &r.ReceivedAt, &r.PostedAt,
		&r.ReversedAt, &r.Note, &r.Version, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GoodsReceipt{}, ErrNotFound
	}
	if err != nil {
		return GoodsReceipt{}, fmt.Errorf("scan receipt: %w", err)
	}
	return r, nil
}

func queryLines(ctx context.Context, q db.DBTX, receiptID int64) ([]GoodsReceiptLine, error) {
	rows, err := q.Query(ctx,
		`SELECT `+lineColumns+` FROM goods_receipt_lines WHERE receipt_id = $1 ORDER BY line_order, id`,
		receiptID)
	if err != nil {
		return nil, fmt.Errorf("query receipt lines: %w", err)
	}
	defer rows.Close()

	lines := make([]GoodsReceiptLine, 0)
	for rows.Next() {
		var l GoodsReceiptLine
		if err := rows.Scan(&l.ID, &l.ReceiptID, &l.SKUID, &l.POLineID, &l.ExpectedQty,
			&l.ReceivedQty, &l.AcceptedQty, &l.RejectedQty, &l.BatchNo, &l.MfgDate,
			&l.ExpiryDate, &l.CostPrice, &l.MRP, &l.BinCode, &l.QCStatus,
			&l.FifoSequence, &l.LineOrder, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan receipt line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
