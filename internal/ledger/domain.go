// Package ledger is the durable store of inventory lots. Lots are created by
// posting goods receipts, consumed oldest-first by downstream logic, and
// tombstoned by reversal so history is never deleted.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus marks whether a lot is live or tombstoned by a reversal.
type LotStatus string

const (
	// LotStatusActive marks a consumable lot.
	LotStatusActive LotStatus = "ACTIVE"
	// LotStatusReversed marks a lot tombstoned by a receipt reversal.
	LotStatusReversed LotStatus = "REVERSED"
)

// Lot is a discrete, cost-attributed quantity of a SKU at a location.
// FifoSequence is unique per (SKU, location) and immutable once assigned.
type Lot struct {
	ID            int64           `json:"id"`
	SKUID         int64           `json:"sku_id"`
	LocationID    int64           `json:"location_id"`
	ReceiptID     int64           `json:"receipt_id"`
	ReceiptLineID int64           `json:"receipt_line_id"`
	FifoSequence  int64           `json:"fifo_sequence"`
	OriginalQty   float64         `json:"original_qty"`
	RemainingQty  float64         `json:"remaining_qty"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	BatchNo       *string         `json:"batch_no,omitempty"`
	ExpiryDate    *time.Time      `json:"expiry_date,omitempty"`
	Status        LotStatus       `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

var (
	// ErrLotNotFound indicates the lot does not exist.
	ErrLotNotFound = errors.New("ledger: lot not found")
	// ErrInvalidQuantity indicates a non-positive consumption quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
	// ErrInsufficientRemaining indicates consumption beyond remaining quantity.
	ErrInsufficientRemaining = errors.New("ledger: consume quantity exceeds remaining")
	// ErrLotConsumed indicates a reversal hit a partially or fully consumed lot.
	ErrLotConsumed = errors.New("ledger: lot has been consumed")
	// ErrLotReversed indicates an operation on a tombstoned lot.
	ErrLotReversed = errors.New("ledger: lot has been reversed")
)
