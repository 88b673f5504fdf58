package po

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	orders map[int64]*PurchaseOrder
	lines  map[int64]*Line
}

func newFakeStore(order PurchaseOrder, lines ...Line) *fakeStore {
	store := &fakeStore{orders: map[int64]*PurchaseOrder{order.ID: &order}, lines: map[int64]*Line{}}
	for i := range lines {
		line := lines[i]
		store.lines[line.ID] = &line
	}
	return store
}

func (s *fakeStore) GetLineForUpdate(ctx context.Context, lineID int64) (Line, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return Line{}, ErrLineNotFound
	}
	return *line, nil
}

func (s *fakeStore) SetLineReceived(ctx context.Context, lineID int64, received float64) error {
	line, ok := s.lines[lineID]
	if !ok {
		return ErrLineNotFound
	}
	line.ReceivedQty = received
	return nil
}

func (s *fakeStore) GetPOForUpdate(ctx context.Context, poID int64) (PurchaseOrder, error) {
	order, ok := s.orders[poID]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return *order, nil
}

func (s *fakeStore) LinesByPO(ctx context.Context, poID int64) ([]Line, error) {
	var lines []Line
	for _, line := range s.lines {
		if line.POID == poID {
			lines = append(lines, *line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (s *fakeStore) SetPOStatus(ctx context.Context, poID int64, status Status) error {
	order, ok := s.orders[poID]
	if !ok {
		return ErrPONotFound
	}
	order.Status = status
	return nil
}

func TestApplyReceiptPartialThenComplete(t *testing.T) {
	store := newFakeStore(
		PurchaseOrder{ID: 1, Number: "PO-1", Status: StatusApproved},
		Line{ID: 10, POID: 1, SKUID: 5, OrderedQty: 100},
	)
	ctx := context.Background()

	result, err := ApplyReceipt(ctx, store, 10, 60)
	require.NoError(t, err)
	require.InDelta(t, 60, result.ReceivedQty, 0.0001)
	require.False(t, result.OverReceipt)
	require.Equal(t, StatusPartiallyReceived, result.POStatus)

	result, err = ApplyReceipt(ctx, store, 10, 40)
	require.NoError(t, err)
	require.InDelta(t, 100, result.ReceivedQty, 0.0001)
	require.Equal(t, StatusReceived, result.POStatus)
}

func TestApplyReceiptFlagsOverReceiptWithoutClamping(t *testing.T) {
	store := newFakeStore(
		PurchaseOrder{ID: 1, Number: "PO-1", Status: StatusApproved},
		Line{ID: 10, POID: 1, SKUID: 5, OrderedQty: 100},
	)

	result, err := ApplyReceipt(context.Background(), store, 10, 120)
	require.NoError(t, err)
	require.True(t, result.OverReceipt)
	require.InDelta(t, 120, result.ReceivedQty, 0.0001, "over-receipt must not be clamped")
	require.Equal(t, StatusReceived, result.POStatus)
}

func TestApplyReceiptReversalRestoresStatus(t *testing.T) {
	store := newFakeStore(
		PurchaseOrder{ID: 1, Number: "PO-1", Status: StatusApproved},
		Line{ID: 10, POID: 1, SKUID: 5, OrderedQty: 100},
		Line{ID: 11, POID: 1, SKUID: 6, OrderedQty: 50},
	)
	ctx := context.Background()

	_, err := ApplyReceipt(ctx, store, 10, 60)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReceived, store.orders[1].Status)

	result, err := ApplyReceipt(ctx, store, 10, -60)
	require.NoError(t, err)
	require.InDelta(t, 0, result.ReceivedQty, 0.0001)
	require.Equal(t, StatusApproved, result.POStatus, "rollback must restore pre-receipt status")
}

func TestApplyReceiptRejectsNegativeBeyondZero(t *testing.T) {
	store := newFakeStore(
		PurchaseOrder{ID: 1, Number: "PO-1", Status: StatusPartiallyReceived},
		Line{ID: 10, POID: 1, SKUID: 5, OrderedQty: 100, ReceivedQty: 10},
	)

	_, err := ApplyReceipt(context.Background(), store, 10, -25)
	require.ErrorIs(t, err, ErrNegativeReceived)
	require.InDelta(t, 10, store.lines[10].ReceivedQty, 0.0001, "failed apply must not mutate the line")
}

func TestApplyReceiptRejectsUnreceivableStatus(t *testing.T) {
	for _, status := range []Status{StatusDraft, StatusCancelled} {
		store := newFakeStore(
			PurchaseOrder{ID: 1, Number: "PO-1", Status: status},
			Line{ID: 10, POID: 1, SKUID: 5, OrderedQty: 100},
		)
		_, err := ApplyReceipt(context.Background(), store, 10, 10)
		require.ErrorIs(t, err, ErrNotReceivable, "status %s", status)
	}
}

func TestRecalcStatusLeavesDraftAlone(t *testing.T) {
	store := newFakeStore(
		PurchaseOrder{ID: 1, Number: "PO-1", Status: StatusDraft},
		Line{ID: 10, POID: 1, SKUID: 5, OrderedQty: 100},
	)
	status, err := RecalcStatus(context.Background(), store, 1)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, status)
}
