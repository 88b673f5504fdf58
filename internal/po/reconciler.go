package po

import (
	"context"
	"fmt"
	"math"
)

// TxStore is the transactional surface the reconciler needs. Both the pg
// Store and test fakes implement it; the receiving engine passes the store
// bound to its own post/reverse transaction.
type TxStore interface {
	GetLineForUpdate(ctx context.Context, lineID int64) (Line, error)
	SetLineReceived(ctx context.Context, lineID int64, received float64) error
	GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error)
	LinesByPO(ctx context.Context, poID int64) ([]Line, error)
	SetPOStatus(ctx context.Context, poID int64, status Status) error
}

// ApplyReceipt adds deltaQty to a PO line's received quantity and recomputes
// the parent PO status from a consistent snapshot of all its lines. A forward
// delta beyond the ordered quantity is flagged, never clamped. A negative
// delta (reversal) must not push received below zero.
func ApplyReceipt(ctx context.Context, tx TxStore, poLineID int64, deltaQty float64) (ApplyResult, error) {
	line, err := tx.GetLineForUpdate(ctx, poLineID)
	if err != nil {
		return ApplyResult{}, err
	}

	order, err := tx.GetPOForUpdate(ctx, line.POID)
	if err != nil {
		return ApplyResult{}, err
	}
	if deltaQty > 0 && !order.Status.Receivable() {
		return ApplyResult{}, fmt.Errorf("po %s status %s: %w", order.Number, order.Status, ErrNotReceivable)
	}

	received := line.ReceivedQty + deltaQty
	if received < 0 {
		if received > -1e-9 {
			received = 0
		} else {
			return ApplyResult{}, fmt.Errorf("line %d: %w", poLineID, ErrNegativeReceived)
		}
	}
	if err := tx.SetLineReceived(ctx, poLineID, received); err != nil {
		return ApplyResult{}, err
	}

	status, err := RecalcStatus(ctx, tx, line.POID)
	if err != nil {
		return ApplyResult{}, err
	}

	return ApplyResult{
		POID:        line.POID,
		POLineID:    poLineID,
		OrderedQty:  line.OrderedQty,
		ReceivedQty: received,
		OverReceipt: deltaQty > 0 && received > line.OrderedQty+1e-9,
		POStatus:    status,
	}, nil
}

// RecalcStatus derives the PO status from its lines: RECEIVED when every
// line is complete, PARTIALLY_RECEIVED when any quantity has arrived,
// otherwise back to APPROVED. DRAFT and CANCELLED are left untouched.
func RecalcStatus(ctx context.Context, tx TxStore, poID int64) (Status, error) {
	order, err := tx.GetPOForUpdate(ctx, poID)
	if err != nil {
		return "", err
	}
	if order.Status == StatusDraft || order.Status == StatusCancelled {
		return order.Status, nil
	}

	lines, err := tx.LinesByPO(ctx, poID)
	if err != nil {
		return "", err
	}

	allComplete := len(lines) > 0
	anyReceived := false
	for _, line := range lines {
		if math.Abs(line.ReceivedQty) > 1e-9 {
			anyReceived = true
		}
		if !line.Complete() {
			allComplete = false
		}
	}

	status := StatusApproved
	switch {
	case allComplete:
		status = StatusReceived
	case anyReceived:
		status = StatusPartiallyReceived
	}

	if status != order.Status {
		if err := tx.SetPOStatus(ctx, poID, status); err != nil {
			return "", err
		}
	}
	return status, nil
}
