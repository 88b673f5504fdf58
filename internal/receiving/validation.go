package receiving

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// qtyTolerance absorbs float rounding when checking the accepted plus
// rejected equals received invariant.
const qtyTolerance = 1e-9

// buildLine turns a validated request into a line, enforcing the quantity
// split invariant and parsing money fields.
func buildLine(receiptID int64, req LineRequest) (GoodsReceiptLine, error) {
	if math.Abs(req.AcceptedQty+req.RejectedQty-req.ReceivedQty) > qtyTolerance {
		return GoodsReceiptLine{}, fmt.Errorf("%w: accepted %.4f + rejected %.4f must equal received %.4f",
			ErrValidation, req.AcceptedQty, req.RejectedQty, req.ReceivedQty)
	}
	if req.MfgDate != nil && req.ExpiryDate != nil && !req.ExpiryDate.After(*req.MfgDate) {
		return GoodsReceiptLine{}, fmt.Errorf("%w: expiry date must be after manufacturing date", ErrValidation)
	}

	cost, err := decimal.NewFromString(req.CostPrice)
	if err != nil {
		return GoodsReceiptLine{}, fmt.Errorf("%w: invalid cost_price %q", ErrValidation, req.CostPrice)
	}
	if cost.IsNegative() {
		return GoodsReceiptLine{}, fmt.Errorf("%w: cost_price must not be negative", ErrValidation)
	}
	mrp := decimal.Zero
	if req.MRP != "" {
		mrp, err = decimal.NewFromString(req.MRP)
		if err != nil {
			return GoodsReceiptLine{}, fmt.Errorf("%w: invalid mrp %q", ErrValidation, req.MRP)
		}
		if mrp.IsNegative() {
			return GoodsReceiptLine{}, fmt.Errorf("%w: mrp must not be negative", ErrValidation)
		}
	}

	return GoodsReceiptLine{
		ReceiptID:   receiptID,
		SKUID:       req.SKUID,
		POLineID:    req.POLineID,
		ExpectedQty: req.ExpectedQty,
		ReceivedQty: req.ReceivedQty,
		AcceptedQty: req.AcceptedQty,
		RejectedQty: req.RejectedQty,
		BatchNo:     req.BatchNo,
		MfgDate:     req.MfgDate,
		ExpiryDate:  req.ExpiryDate,
		CostPrice:   cost,
		MRP:         mrp,
		BinCode:     req.BinCode,
		QCStatus:    deriveQCStatus(req.AcceptedQty, req.RejectedQty),
	}, nil
}
