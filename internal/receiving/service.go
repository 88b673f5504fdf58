package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/po"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// TxRepository is the transaction-bound persistence surface of a post or
// reverse. One implementation binds receipts, lots, FIFO sequences and
// purchase order lines to a single database transaction.
type TxRepository interface {
	GetReceiptForUpdate(ctx context.Context, id int64) (GoodsReceipt, error)
	GetLines(ctx context.Context, receiptID int64) ([]GoodsReceiptLine, error)
	UpdateStatus(ctx context.Context, id, version int64, status Status, at time.Time) error
	SetAggregates(ctx context.Context, receiptID int64, totalQty float64, totalValue decimal.Decimal) error
	InsertLine(ctx context.Context, line GoodsReceiptLine) (GoodsReceiptLine, error)
	UpdateLine(ctx context.Context, line GoodsReceiptLine) error
	DeleteLine(ctx context.Context, receiptID, lineID int64) error
	SetLineSequence(ctx context.Context, lineID, seq int64) error
	InsertMovement(ctx context.Context, m Movement) error

	NextSequence(ctx context.Context, skuID, locationID int64) (int64, error)
	CreateLot(ctx context.Context, lot ledger.Lot) (int64, error)
	ReverseLots(ctx context.Context, receiptID int64) ([]ledger.Lot, error)
	ApplyPODelta(ctx context.Context, poLineID int64, delta float64) (po.ApplyResult, error)
}

// RepositoryPort abstracts receipt persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateReceipt(ctx context.Context, receipt GoodsReceipt) (GoodsReceipt, error)
	GetReceipt(ctx context.Context, id int64) (GoodsReceipt, error)
	List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error)
}

// MasterDataPort validates SKU and location references.
type MasterDataPort interface {
	SKUExists(ctx context.Context, id int64) (bool, error)
	LocationExists(ctx context.Context, id int64) (bool, error)
}

// POReaderPort reads purchase orders for receipt linkage checks.
type POReaderPort interface {
	GetPO(ctx context.Context, poID int64) (po.PurchaseOrder, []po.Line, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards post and reverse against duplicate submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CachePort invalidates cached lot listings after posting or reversal.
type CachePort interface {
	Invalidate(ctx context.Context, skuID, locationID int64)
}

const idempotencyModule = "receiving"

// Service implements the goods receipt lifecycle.
type Service struct {
	repo    RepositoryPort
	master  MasterDataPort
	pos     POReaderPort
	audit   AuditPort
	idem    IdempotencyPort
	cache   CachePort
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds the Service. audit, idem, cache and metrics may be nil.
func NewService(repo RepositoryPort, master MasterDataPort, pos POReaderPort,
	audit AuditPort, idem IdempotencyPort, cache CachePort,
	metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		master:  master,
		pos:     pos,
		audit:   audit,
		idem:    idem,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Create opens a new draft receipt. A linked purchase order must exist and
// be in a receivable status at creation time.
func (s *Service) Create(ctx context.Context, req CreateReceiptRequest, actorID int64) (GoodsReceipt, error) {
	ok, err := s.master.LocationExists(ctx, req.LocationID)
	if err != nil {
		return GoodsReceipt{}, err
	}
	if !ok {
		return GoodsReceipt{}, fmt.Errorf("%w: location %d does not exist", ErrValidation, req.LocationID)
	}
	if req.POID != nil {
		order, _, err := s.pos.GetPO(ctx, *req.POID)
		if err != nil {
			if errors.Is(err, po.ErrPONotFound) {
				return GoodsReceipt{}, fmt.Errorf("%w: purchase order %d does not exist", ErrValidation, *req.POID)
			}
			return GoodsReceipt{}, err
		}
		if !order.Status.Receivable() {
			return GoodsReceipt{}, fmt.Errorf("%w: purchase order %d is %s", ErrPONotReceivable, order.ID, order.Status)
		}
	}

	receipt, err := s.repo.CreateReceipt(ctx, GoodsReceipt{
		GRNo:         generateNumber("GR"),
		POID:         req.POID,
		ASNRef:       req.ASNRef,
		MovementType: MovementReceipt,
		Status:       StatusDraft,
		LocationID:   req.LocationID,
		TotalValue:   decimal.Zero,
		Note:         req.Note,
		CreatedBy:    actorID,
	})
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actorID, "GR_CREATE", receipt.ID, map[string]any{"gr_no": receipt.GRNo})
	return receipt, nil
}

// AddLine appends a line to an editable receipt and recomputes totals.
func (s *Service) AddLine(ctx context.Context, receiptID int64, req LineRequest, actorID int64) (GoodsReceiptLine, error) {
	line, err := s.prepareLine(ctx, receiptID, req)
	if err != nil {
		return GoodsReceiptLine{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !receipt.Status.Editable() {
			return fmt.Errorf("%w: status %s", ErrNotEditable, receipt.Status)
		}
		line, err = tx.InsertLine(ctx, line)
		if err != nil {
			return err
		}
		return s.refreshAggregates(ctx, tx, receiptID)
	})
	if err != nil {
		return GoodsReceiptLine{}, err
	}
	s.recordAudit(ctx, actorID, "GR_LINE_ADD", receiptID, map[string]any{"line_id": line.ID, "sku_id": line.SKUID})
	return line, nil
}

// UpdateLine replaces a line's quantities and attributes, then recomputes totals.
func (s *Service) UpdateLine(ctx context.Context, receiptID, lineID int64, req LineRequest, actorID int64) (GoodsReceiptLine, error) {
	line, err := s.prepareLine(ctx, receiptID, req)
	if err != nil {
		return GoodsReceiptLine{}, err
	}
	line.ID = lineID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !receipt.Status.Editable() {
			return fmt.Errorf("%w: status %s", ErrNotEditable, receipt.Status)
		}
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		return s.refreshAggregates(ctx, tx, receiptID)
	})
	if err != nil {
		return GoodsReceiptLine{}, err
	}
	s.recordAudit(ctx, actorID, "GR_LINE_UPDATE", receiptID, map[string]any{"line_id": lineID})
	return line, nil
}

// RemoveLine deletes a line from an editable receipt and recomputes totals.
func (s *Service) RemoveLine(ctx context.Context, receiptID, lineID, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !receipt.Status.Editable() {
			return fmt.Errorf("%w: status %s", ErrNotEditable, receipt.Status)
		}
		if err := tx.DeleteLine(ctx, receiptID, lineID); err != nil {
			return err
		}
		return s.refreshAggregates(ctx, tx, receiptID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "GR_LINE_REMOVE", receiptID, map[string]any{"line_id": lineID})
	return nil
}

// Receive moves a draft into active counting.
func (s *Service) Receive(ctx context.Context, receiptID, actorID int64) (GoodsReceipt, error) {
	receipt, err := s.transition(ctx, receiptID, StatusReceiving)
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actorID, "GR_RECEIVE", receiptID, nil)
	return receipt, nil
}

// Cancel closes a receipt before posting. Posted receipts cannot be
// cancelled, only reversed.
func (s *Service) Cancel(ctx context.Context, receiptID, actorID int64) (GoodsReceipt, error) {
	receipt, err := s.transition(ctx, receiptID, StatusCancelled)
	if err != nil {
		return GoodsReceipt{}, err
	}
	s.recordAudit(ctx, actorID, "GR_CANCEL", receiptID, nil)
	return receipt, nil
}

func (s *Service) transition(ctx context.Context, receiptID int64, to Status) (GoodsReceipt, error) {
	var out GoodsReceipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !receipt.Status.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, receipt.Status, to)
		}
		if err := tx.UpdateStatus(ctx, receiptID, receipt.Version, to, s.now()); err != nil {
			return err
		}
		receipt.Status = to
		receipt.Version++
		out = receipt
		return nil
	})
	return out, err
}

// Post atomically converts the receipt's accepted lines into inventory lots.
// Each lot draws the next FIFO sequence for its SKU and location, linked
// purchase order lines are reconciled, a movement row is written, and the
// receipt moves to POSTED. Any failure rolls back everything.
func (s *Service) Post(ctx context.Context, receiptID, actorID int64) (PostResult, error) {
	var result PostResult

	current, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return PostResult{}, err
	}
	// Replays of an already completed post must report the status guard,
	// not the idempotency key they would otherwise trip first.
	if !current.Status.CanTransition(StatusPosted) {
		return PostResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusPosted)
	}
	if err := s.claimIdempotency(ctx, "GR-POST:"+current.GRNo); err != nil {
		return PostResult{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !receipt.Status.CanTransition(StatusPosted) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, receipt.Status, StatusPosted)
		}
		lines, err := tx.GetLines(ctx, receiptID)
		if err != nil {
			return err
		}

		accepted := make([]GoodsReceiptLine, 0, len(lines))
		for _, line := range lines {
			if line.AcceptedQty > 0 {
				accepted = append(accepted, line)
			}
		}
		if len(accepted) == 0 {
			return ErrNoAcceptedLines
		}

		now := s.now()
		for _, line := range accepted {
			seq, err := tx.NextSequence(ctx, line.SKUID, receipt.LocationID)
			if err != nil {
				return err
			}
			lotID, err := tx.CreateLot(ctx, ledger.Lot{
				SKUID:         line.SKUID,
				LocationID:    receipt.LocationID,
				ReceiptID:     receipt.ID,
				ReceiptLineID: line.ID,
				FifoSequence:  seq,
				OriginalQty:   line.AcceptedQty,
				RemainingQty:  line.AcceptedQty,
				UnitCost:      line.CostPrice,
				BatchNo:       line.BatchNo,
				ExpiryDate:    line.ExpiryDate,
				Status:        ledger.LotStatusActive,
			})
			if err != nil {
				return err
			}
			if err := tx.SetLineSequence(ctx, line.ID, seq); err != nil {
				return err
			}
			result.Lots = append(result.Lots, CreatedLot{
				LotID:        lotID,
				LineID:       line.ID,
				SKUID:        line.SKUID,
				FifoSequence: seq,
			})

			if line.POLineID != nil {
				applied, err := tx.ApplyPODelta(ctx, *line.POLineID, line.AcceptedQty)
				if err != nil {
					return err
				}
				result.POStatus = applied.POStatus
				if applied.OverReceipt {
					result.Warnings = append(result.Warnings, OverReceiptWarning{
						POLineID:    applied.POLineID,
						OrderedQty:  applied.OrderedQty,
						ReceivedQty: applied.ReceivedQty,
					})
				}
			}
		}

		totalQty, totalValue := computeAggregates(lines)
		if err := tx.SetAggregates(ctx, receiptID, totalQty, totalValue); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, Movement{
			ReceiptID:  receipt.ID,
			RefID:      movementRef(receipt.ID, MovementReceipt),
			Type:       MovementReceipt,
			TotalQty:   totalQty,
			TotalValue: totalValue,
			OccurredAt: now,
		}); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, receiptID, receipt.Version, StatusPosted, now); err != nil {
			return err
		}

		receipt.Status = StatusPosted
		receipt.Version++
		receipt.TotalQty = totalQty
		receipt.TotalValue = totalValue
		receipt.PostedAt = &now
		receipt.Lines = lines
		result.Receipt = receipt
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, "GR-POST:"+current.GRNo)
		return PostResult{}, err
	}

	s.metrics.ReceiptPosted(len(result.Lots))
	for range result.Warnings {
		s.metrics.OverReceiptFlagged()
	}
	s.invalidateLots(ctx, result.Receipt)
	s.recordAudit(ctx, actorID, "GR_POST", receiptID, map[string]any{
		"lots":      len(result.Lots),
		"total_qty": result.Receipt.TotalQty,
		"warnings":  len(result.Warnings),
	})
	if s.logger != nil {
		s.logger.Info("receipt posted",
			slog.Int64("receipt_id", receiptID),
			slog.Int("lots", len(result.Lots)),
			slog.Int("over_receipts", len(result.Warnings)))
	}
	return result, nil
}

// Reverse negates a posted receipt: its lots are tombstoned, linked purchase
// order lines are decremented and their status rolled back, and a
// compensating movement is written. Reversal fails if any lot created by the
// receipt has been partially or fully consumed.
func (s *Service) Reverse(ctx context.Context, receiptID, actorID int64) (ReverseResult, error) {
	var result ReverseResult

	current, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return ReverseResult{}, err
	}
	if !current.Status.CanTransition(StatusReversed) {
		return ReverseResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, StatusReversed)
	}
	if err := s.claimIdempotency(ctx, "GR-REV:"+current.GRNo); err != nil {
		return ReverseResult{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		receipt, err := tx.GetReceiptForUpdate(ctx, receiptID)
		if err != nil {
			return err
		}
		if !receipt.Status.CanTransition(StatusReversed) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, receipt.Status, StatusReversed)
		}

		lots, err := tx.ReverseLots(ctx, receiptID)
		if err != nil {
			return err
		}

		lines, err := tx.GetLines(ctx, receiptID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.POLineID == nil || line.AcceptedQty == 0 {
				continue
			}
			if _, err := tx.ApplyPODelta(ctx, *line.POLineID, -line.AcceptedQty); err != nil {
				return err
			}
		}

		now := s.now()
		if err := tx.InsertMovement(ctx, Movement{
			ReceiptID:  receipt.ID,
			RefID:      movementRef(receipt.ID, MovementReceiptReversal),
			Type:       MovementReceiptReversal,
			TotalQty:   -receipt.TotalQty,
			TotalValue: receipt.TotalValue.Neg(),
			OccurredAt: now,
		}); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, receiptID, receipt.Version, StatusReversed, now); err != nil {
			return err
		}

		receipt.Status = StatusReversed
		receipt.Version++
		receipt.ReversedAt = &now
		receipt.Lines = lines
		result.Receipt = receipt
		result.Lots = lots
		return nil
	})
	if err != nil {
		s.releaseIdempotency(ctx, "GR-REV:"+current.GRNo)
		return ReverseResult{}, err
	}

	s.metrics.ReceiptReversed()
	s.invalidateLots(ctx, result.Receipt)
	s.recordAudit(ctx, actorID, "GR_REVERSE", receiptID, map[string]any{"lots": len(result.Lots)})
	if s.logger != nil {
		s.logger.Info("receipt reversed",
			slog.Int64("receipt_id", receiptID),
			slog.Int("lots", len(result.Lots)))
	}
	return result, nil
}

// Get returns a receipt with its lines.
func (s *Service) Get(ctx context.Context, receiptID int64) (GoodsReceipt, error) {
	return s.repo.GetReceipt(ctx, receiptID)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]GoodsReceipt, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// prepareLine validates references and builds the line record.
func (s *Service) prepareLine(ctx context.Context, receiptID int64, req LineRequest) (GoodsReceiptLine, error) {
	line, err := buildLine(receiptID, req)
	if err != nil {
		return GoodsReceiptLine{}, err
	}
	ok, err := s.master.SKUExists(ctx, req.SKUID)
	if err != nil {
		return GoodsReceiptLine{}, err
	}
	if !ok {
		return GoodsReceiptLine{}, fmt.Errorf("%w: sku %d does not exist", ErrValidation, req.SKUID)
	}
	if req.POLineID != nil {
		receipt, err := s.repo.GetReceipt(ctx, receiptID)
		if err != nil {
			return GoodsReceiptLine{}, err
		}
		if receipt.POID == nil {
			return GoodsReceiptLine{}, fmt.Errorf("%w: receipt has no linked purchase order", ErrValidation)
		}
		_, poLines, err := s.pos.GetPO(ctx, *receipt.POID)
		if err != nil {
			return GoodsReceiptLine{}, err
		}
		matched := false
		for _, pl := range poLines {
			if pl.ID == *req.POLineID {
				if pl.SKUID != req.SKUID {
					return GoodsReceiptLine{}, fmt.Errorf("%w: po line %d is for a different sku", ErrValidation, pl.ID)
				}
				matched = true
				break
			}
		}
		if !matched {
			return GoodsReceiptLine{}, fmt.Errorf("%w: po line %d is not on purchase order %d", ErrValidation, *req.POLineID, *receipt.POID)
		}
	}
	return line, nil
}

// refreshAggregates recomputes receipt totals from its current lines.
func (s *Service) refreshAggregates(ctx context.Context, tx TxRepository, receiptID int64) error {
	lines, err := tx.GetLines(ctx, receiptID)
	if err != nil {
		return err
	}
	qty, value := computeAggregates(lines)
	return tx.SetAggregates(ctx, receiptID, qty, value)
}

func (s *Service) claimIdempotency(ctx context.Context, key string) error {
	if s.idem == nil {
		return nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return fmt.Errorf("%w: %s", ErrConflict, key)
		}
		return err
	}
	return nil
}

func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil && s.logger != nil {
		s.logger.Warn("idempotency release", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) invalidateLots(ctx context.Context, receipt GoodsReceipt) {
	if s.cache == nil {
		return
	}
	seen := map[int64]bool{}
	for _, line := range receipt.Lines {
		if seen[line.SKUID] {
			continue
		}
		seen[line.SKUID] = true
		s.cache.Invalidate(ctx, line.SKUID, receipt.LocationID)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, receiptID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "goods_receipt",
		EntityID: fmt.Sprintf("%d", receiptID),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
