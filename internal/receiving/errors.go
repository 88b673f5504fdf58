package receiving

import (
	"errors"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
)

var (
	// ErrNotFound means no receipt exists with the given id.
	ErrNotFound = errors.New("receiving: receipt not found")
	// ErrLineNotFound means no line with the given id on this receipt.
	ErrLineNotFound = errors.New("receiving: line not found")
	// ErrNotEditable means the receipt status no longer allows line changes.
	ErrNotEditable = errors.New("receiving: receipt is not editable")
	// ErrInvalidTransition means the requested status change is not in the
	// transition table, including a second post or reverse.
	ErrInvalidTransition = errors.New("receiving: invalid status transition")
	// ErrNoAcceptedLines means posting was attempted with no accepted quantity.
	ErrNoAcceptedLines = errors.New("receiving: receipt has no accepted lines")
	// ErrValidation means a line or header field failed validation.
	ErrValidation = errors.New("receiving: validation failed")
	// ErrConflict means a concurrent update won the version race.
	ErrConflict = errors.New("receiving: receipt was modified concurrently")
	// ErrPONotReceivable means the linked purchase order cannot accept receipts.
	ErrPONotReceivable = errors.New("receiving: purchase order is not receivable")

	// ErrLotConsumed is surfaced when reversal finds partially consumed lots.
	ErrLotConsumed = ledger.ErrLotConsumed
)
