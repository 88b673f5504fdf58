package receiving

import "time"

// CreateReceiptRequest opens a new draft receipt.
type CreateReceiptRequest struct {
	POID       *int64  `json:"po_id" validate:"omitempty,gt=0"`
	ASNRef     *string `json:"asn_ref" validate:"omitempty,max=64"`
	LocationID int64   `json:"location_id" validate:"required,gt=0"`
	Note       string  `json:"note" validate:"max=500"`
}

// LineRequest adds or replaces a line on an editable receipt.
type LineRequest struct {
	SKUID       int64      `json:"sku_id" validate:"required,gt=0"`
	POLineID    *int64     `json:"po_line_id" validate:"omitempty,gt=0"`
	ExpectedQty *float64   `json:"expected_qty" validate:"omitempty,gte=0"`
	ReceivedQty float64    `json:"received_qty" validate:"gte=0"`
	AcceptedQty float64    `json:"accepted_qty" validate:"gte=0"`
	RejectedQty float64    `json:"rejected_qty" validate:"gte=0"`
	BatchNo     *string    `json:"batch_no" validate:"omitempty,max=64"`
	MfgDate     *time.Time `json:"mfg_date"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	CostPrice   string     `json:"cost_price" validate:"required"`
	MRP         string     `json:"mrp" validate:"omitempty"`
	BinCode     *string    `json:"bin_code" validate:"omitempty,max=32"`
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	Status     Status
	POID       int64
	LocationID int64
	Limit      int
	Offset     int
}
