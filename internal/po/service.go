package po

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// TxWriter extends TxStore with the creation operations the service uses.
type TxWriter interface {
	TxStore
	CreatePO(ctx context.Context, order PurchaseOrder) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	GetPO(ctx context.Context, poID int64) (PurchaseOrder, []Line, error)
	List(ctx context.Context, limit, offset int) ([]PurchaseOrder, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxWriter) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages purchase order headers and approval so the reconciler has
// something to reconcile against. Authoring UI stays out of scope; these are
// the minimal operations receiving needs.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs the service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput describes a PO line on creation.
type LineInput struct {
	SKUID      int64
	OrderedQty float64
	Price      string
	Note       string
}

// CreateInput describes PO creation.
type CreateInput struct {
	Number       string
	SupplierID   int64
	ExpectedDate *time.Time
	Note         string
	Lines        []LineInput
}

// Create persists a DRAFT purchase order with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	order := PurchaseOrder{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		Status:       StatusDraft,
		ExpectedDate: input.ExpectedDate,
		Note:         input.Note,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxWriter) error {
		poID, err := tx.CreatePO(ctx, order)
		if err != nil {
			return err
		}
		order.ID = poID
		for _, in := range input.Lines {
			if in.SKUID <= 0 || in.OrderedQty <= 0 {
				return fmt.Errorf("%w: line requires sku and positive ordered qty", ErrValidation)
			}
			line := Line{POID: poID, SKUID: in.SKUID, OrderedQty: in.OrderedQty, Note: in.Note}
			if in.Price != "" {
				price, err := parsePrice(in.Price)
				if err != nil {
					return fmt.Errorf("%w: invalid price %q", ErrValidation, in.Price)
				}
				line.Price = price
			}
			if _, err := tx.InsertLine(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", order.ID, map[string]any{"number": order.Number})
	return order, nil
}

// Approve transitions DRAFT to APPROVED, opening the PO for receiving.
func (s *Service) Approve(ctx context.Context, poID int64, actorID int64) error {
	order, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if order.Status != StatusDraft {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxWriter) error {
		return tx.SetPOStatus(ctx, poID, StatusApproved)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_APPROVE", poID, map[string]any{"actor_id": actorID})
	return nil
}

// Cancel closes a PO that has not received anything yet.
func (s *Service) Cancel(ctx context.Context, poID int64, actorID int64) error {
	order, lines, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return err
	}
	if order.Status != StatusDraft && order.Status != StatusApproved {
		return ErrInvalidState
	}
	for _, line := range lines {
		if line.ReceivedQty > 0 {
			return fmt.Errorf("line %d has received quantity: %w", line.ID, ErrInvalidState)
		}
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxWriter) error {
		return tx.SetPOStatus(ctx, poID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "PO_CANCEL", poID, map[string]any{"actor_id": actorID})
	return nil
}

// Get returns a PO with its lines.
func (s *Service) Get(ctx context.Context, poID int64) (PurchaseOrder, []Line, error) {
	return s.repo.GetPO(ctx, poID)
}

// List returns purchase orders newest-first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]PurchaseOrder, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchase_order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func parsePrice(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}
