// Package po reconciles ordered versus received quantities on purchase
// orders. It is the sole writer of PO status; the receiving engine only
// supplies delta quantities.
package po

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the purchase order lifecycle status.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusApproved          Status = "APPROVED"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
	StatusCancelled         Status = "CANCELLED"
)

// Receivable reports whether goods may be received against this status.
// RECEIVED stays receivable because over-receipt is legitimate business.
func (s Status) Receivable() bool {
	switch s {
	case StatusApproved, StatusPartiallyReceived, StatusReceived:
		return true
	default:
		return false
	}
}

// PurchaseOrder is the header record.
type PurchaseOrder struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	SupplierID   int64      `json:"supplier_id"`
	Status       Status     `json:"status"`
	ExpectedDate *time.Time `json:"expected_date,omitempty"`
	Note         string     `json:"note,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Line carries the ordered quantity and the running received counter the
// receiving engine reconciles against.
type Line struct {
	ID          int64           `json:"id"`
	POID        int64           `json:"po_id"`
	SKUID       int64           `json:"sku_id"`
	OrderedQty  float64         `json:"ordered_qty"`
	ReceivedQty float64         `json:"received_qty"`
	Price       decimal.Decimal `json:"price"`
	Note        string          `json:"note,omitempty"`
}

// Complete reports whether the line is fully received.
func (l Line) Complete() bool {
	return l.ReceivedQty >= l.OrderedQty
}

// ApplyResult describes the outcome of one reconciliation delta.
type ApplyResult struct {
	POID        int64   `json:"po_id"`
	POLineID    int64   `json:"po_line_id"`
	OrderedQty  float64 `json:"ordered_qty"`
	ReceivedQty float64 `json:"received_qty"`
	OverReceipt bool    `json:"over_receipt"`
	POStatus    Status  `json:"po_status"`
}

var (
	// ErrPONotFound indicates a missing purchase order.
	ErrPONotFound = errors.New("po: purchase order not found")
	// ErrLineNotFound indicates a missing purchase order line.
	ErrLineNotFound = errors.New("po: purchase order line not found")
	// ErrNotReceivable indicates the PO status does not permit receiving.
	ErrNotReceivable = errors.New("po: purchase order not open for receiving")
	// ErrNegativeReceived indicates a rollback would push received below zero.
	ErrNegativeReceived = errors.New("po: received quantity cannot go negative")
	// ErrInvalidState indicates an action invalid for the current status.
	ErrInvalidState = errors.New("po: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("po: invalid input")
)
