package receiving

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusReceiving, true},
		{StatusDraft, StatusPosted, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusReversed, false},
		{StatusReceiving, StatusPosted, true},
		{StatusReceiving, StatusCancelled, true},
		{StatusReceiving, StatusDraft, false},
		{StatusPosted, StatusReversed, true},
		{StatusPosted, StatusCancelled, false},
		{StatusPosted, StatusPosted, false},
		{StatusReversed, StatusPosted, false},
		{StatusReversed, StatusDraft, false},
		{StatusCancelled, StatusReceiving, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusEditable(t *testing.T) {
	assert.True(t, StatusDraft.Editable())
	assert.True(t, StatusReceiving.Editable())
	assert.False(t, StatusPosted.Editable())
	assert.False(t, StatusReversed.Editable())
	assert.False(t, StatusCancelled.Editable())
}

func TestDeriveQCStatus(t *testing.T) {
	assert.Equal(t, QCPending, deriveQCStatus(0, 0))
	assert.Equal(t, QCPassed, deriveQCStatus(10, 0))
	assert.Equal(t, QCFailed, deriveQCStatus(0, 10))
	assert.Equal(t, QCPartial, deriveQCStatus(6, 4))
}

func TestComputeAggregates(t *testing.T) {
	lines := []GoodsReceiptLine{
		{AcceptedQty: 10, CostPrice: decimal.RequireFromString("4.50")},
		{AcceptedQty: 5, CostPrice: decimal.RequireFromString("2.00")},
		{AcceptedQty: 0, RejectedQty: 4, CostPrice: decimal.RequireFromString("99.00")},
	}
	qty, value := computeAggregates(lines)
	assert.InDelta(t, 15.0, qty, 1e-9)
	assert.True(t, value.Equal(decimal.RequireFromString("55.00")), "value %s", value)
}

func TestBuildLine(t *testing.T) {
	t.Run("balanced split", func(t *testing.T) {
		line, err := buildLine(1, LineRequest{SKUID: 2, ReceivedQty: 10, AcceptedQty: 7, RejectedQty: 3, CostPrice: "1.25", MRP: "2.00"})
		require.NoError(t, err)
		assert.Equal(t, QCPartial, line.QCStatus)
		assert.True(t, line.CostPrice.Equal(decimal.RequireFromString("1.25")))
		assert.True(t, line.MRP.Equal(decimal.RequireFromString("2.00")))
	})

	t.Run("unbalanced split", func(t *testing.T) {
		_, err := buildLine(1, LineRequest{SKUID: 2, ReceivedQty: 10, AcceptedQty: 7, RejectedQty: 2, CostPrice: "1.00"})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("float rounding tolerated", func(t *testing.T) {
		_, err := buildLine(1, LineRequest{SKUID: 2, ReceivedQty: 0.3, AcceptedQty: 0.1, RejectedQty: 0.2, CostPrice: "1.00"})
		require.NoError(t, err)
	})

	t.Run("negative cost", func(t *testing.T) {
		_, err := buildLine(1, LineRequest{SKUID: 2, ReceivedQty: 1, AcceptedQty: 1, CostPrice: "-3"})
		require.ErrorIs(t, err, ErrValidation)
	})

	t.Run("expiry before manufacture", func(t *testing.T) {
		mfg := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		exp := mfg.AddDate(0, -1, 0)
		_, err := buildLine(1, LineRequest{SKUID: 2, ReceivedQty: 1, AcceptedQty: 1, CostPrice: "1.00", MfgDate: &mfg, ExpiryDate: &exp})
		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestLineValue(t *testing.T) {
	line := GoodsReceiptLine{AcceptedQty: 3, CostPrice: decimal.RequireFromString("2.50")}
	assert.True(t, line.Value().Equal(decimal.RequireFromString("7.50")))
}
