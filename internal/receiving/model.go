// Package receiving owns the goods receipt state machine and the atomic
// post and reverse operations that create and tombstone inventory lots.
package receiving

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/po"
)

// Status represents the goods receipt lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"     // created, lines editable
	StatusReceiving Status = "RECEIVING" // actively being counted, lines editable
	StatusPosted    Status = "POSTED"    // lots created, immutable
	StatusReversed  Status = "REVERSED"  // effect negated, history kept
	StatusCancelled Status = "CANCELLED" // closed before posting
)

// transitions is the closed transition table. Anything not listed is
// rejected at the boundary rather than left to caller checks.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusReceiving, StatusPosted, StatusCancelled},
	StatusReceiving: {StatusPosted, StatusCancelled},
	StatusPosted:    {StatusReversed},
}

// CanTransition reports whether moving to the target status is allowed.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether lines may be added or changed.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusReceiving
}

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusReceiving, StatusPosted, StatusReversed, StatusCancelled:
		return true
	default:
		return false
	}
}

// MovementType is the categorical movement code written to the movement trail.
type MovementType string

const (
	// MovementReceipt marks a standard inbound receipt.
	MovementReceipt MovementType = "GR"
	// MovementReceiptReversal marks the compensating movement of a reversal.
	MovementReceiptReversal MovementType = "GR_REV"
)

// QCStatus summarises the quality check outcome of a line.
type QCStatus string

const (
	QCPending QCStatus = "PENDING"
	QCPassed  QCStatus = "PASSED"
	QCPartial QCStatus = "PARTIAL"
	QCFailed  QCStatus = "FAILED"
)

// GoodsReceipt is the record of one physical inbound stock event.
type GoodsReceipt struct {
	ID           int64              `json:"id"`
	GRNo         string             `json:"gr_no"`
	POID         *int64             `json:"po_id,omitempty"`
	ASNRef       *string            `json:"asn_ref,omitempty"`
	MovementType MovementType       `json:"movement_type"`
	Status       Status             `json:"status"`
	LocationID   int64              `json:"location_id"`
	TotalQty     float64            `json:"total_qty"`
	TotalValue   decimal.Decimal    `json:"total_value"`
	ReceivedAt   *time.Time         `json:"received_at,omitempty"`
	PostedAt     *time.Time         `json:"posted_at,omitempty"`
	ReversedAt   *time.Time         `json:"reversed_at,omitempty"`
	Note         string             `json:"note,omitempty"`
	Version      int64              `json:"version"`
	CreatedBy    int64              `json:"created_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Lines        []GoodsReceiptLine `json:"lines,omitempty"`
}

// GoodsReceiptLine is one SKU on a receipt. ReceivedQty must equal
// AcceptedQty plus RejectedQty; FifoSequence is populated only by posting.
type GoodsReceiptLine struct {
	ID           int64           `json:"id"`
	ReceiptID    int64           `json:"receipt_id"`
	SKUID        int64           `json:"sku_id"`
	POLineID     *int64          `json:"po_line_id,omitempty"`
	ExpectedQty  *float64        `json:"expected_qty,omitempty"`
	ReceivedQty  float64         `json:"received_qty"`
	AcceptedQty  float64         `json:"accepted_qty"`
	RejectedQty  float64         `json:"rejected_qty"`
	BatchNo      *string         `json:"batch_no,omitempty"`
	MfgDate      *time.Time      `json:"mfg_date,omitempty"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	MRP          decimal.Decimal `json:"mrp"`
	BinCode      *string         `json:"bin_code,omitempty"`
	QCStatus     QCStatus        `json:"qc_status"`
	FifoSequence *int64          `json:"fifo_sequence,omitempty"`
	LineOrder    int             `json:"line_order"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Value returns accepted quantity times cost price.
func (l GoodsReceiptLine) Value() decimal.Decimal {
	return l.CostPrice.Mul(decimal.NewFromFloat(l.AcceptedQty))
}

// deriveQCStatus classifies the line from its quantity split.
func deriveQCStatus(accepted, rejected float64) QCStatus {
	switch {
	case accepted == 0 && rejected == 0:
		return QCPending
	case rejected == 0:
		return QCPassed
	case accepted == 0:
		return QCFailed
	default:
		return QCPartial
	}
}

// computeAggregates derives receipt totals from its lines: total quantity is
// the sum of accepted quantities, total value the sum of accepted × cost.
func computeAggregates(lines []GoodsReceiptLine) (float64, decimal.Decimal) {
	var qty float64
	value := decimal.Zero
	for _, line := range lines {
		qty += line.AcceptedQty
		value = value.Add(line.Value())
	}
	return qty, value
}

// Movement is one entry in the append-only movement trail. Posting writes a
// GR movement, reversal a compensating GR_REV; neither is ever deleted.
type Movement struct {
	ID         int64           `json:"id"`
	ReceiptID  int64           `json:"receipt_id"`
	RefID      uuid.UUID       `json:"ref_id"`
	Type       MovementType    `json:"type"`
	TotalQty   float64         `json:"total_qty"`
	TotalValue decimal.Decimal `json:"total_value"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// movementRef derives a stable reference id so downstream systems can match
// a reversal to the movement it negates without holding our row ids.
func movementRef(receiptID int64, t MovementType) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", t, receiptID)))
}

// CreatedLot identifies one lot created by posting, for audit display.
type CreatedLot struct {
	LotID        int64 `json:"lot_id"`
	LineID       int64 `json:"line_id"`
	SKUID        int64 `json:"sku_id"`
	FifoSequence int64 `json:"fifo_sequence"`
}

// OverReceiptWarning flags accepted quantity beyond the PO ordered quantity.
// It never blocks posting; it is surfaced for review.
type OverReceiptWarning struct {
	POLineID    int64   `json:"po_line_id"`
	OrderedQty  float64 `json:"ordered_qty"`
	ReceivedQty float64 `json:"received_qty"`
}

// PostResult is returned by Post for audit display.
type PostResult struct {
	Receipt  GoodsReceipt         `json:"receipt"`
	Lots     []CreatedLot         `json:"lots"`
	Warnings []OverReceiptWarning `json:"warnings,omitempty"`
	POStatus po.Status            `json:"po_status,omitempty"`
}

// ReverseResult is returned by Reverse for audit display.
type ReverseResult struct {
	Receipt GoodsReceipt `json:"receipt"`
	Lots    []ledger.Lot `json:"lots"`
}
