package po

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryWriter backs the service with in-memory purchase orders.
type memoryWriter struct {
	orders map[int64]PurchaseOrder
	lines  map[int64]Line
	nextID int64
}

func newMemoryWriter() *memoryWriter {
	return &memoryWriter{orders: map[int64]PurchaseOrder{}, lines: map[int64]Line{}}
}

func (m *memoryWriter) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryWriter) GetLineForUpdate(_ context.Context, lineID int64) (Line, error) {
	line, ok := m.lines[lineID]
	if !ok {
		return Line{}, ErrLineNotFound
	}
	return line, nil
}

func (m *memoryWriter) SetLineReceived(_ context.Context, lineID int64, received float64) error {
	line := m.lines[lineID]
	line.ReceivedQty = received
	m.lines[lineID] = line
	return nil
}

func (m *memoryWriter) GetPOForUpdate(_ context.Context, poID int64) (PurchaseOrder, error) {
	order, ok := m.orders[poID]
	if !ok {
		return PurchaseOrder{}, ErrPONotFound
	}
	return order, nil
}

func (m *memoryWriter) LinesByPO(_ context.Context, poID int64) ([]Line, error) {
	lines := make([]Line, 0)
	for _, l := range m.lines {
		if l.POID == poID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (m *memoryWriter) SetPOStatus(_ context.Context, poID int64, status Status) error {
	order := m.orders[poID]
	order.Status = status
	m.orders[poID] = order
	return nil
}

func (m *memoryWriter) CreatePO(_ context.Context, order PurchaseOrder) (int64, error) {
	order.ID = m.id()
	m.orders[order.ID] = order
	return order.ID, nil
}

func (m *memoryWriter) InsertLine(_ context.Context, line Line) (int64, error) {
	line.ID = m.id()
	m.lines[line.ID] = line
	return line.ID, nil
}

func (m *memoryWriter) GetPO(ctx context.Context, poID int64) (PurchaseOrder, []Line, error) {
	order, err := m.GetPOForUpdate(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := m.LinesByPO(ctx, poID)
	return order, lines, err
}

func (m *memoryWriter) List(_ context.Context, limit, offset int) ([]PurchaseOrder, int, error) {
	orders := make([]PurchaseOrder, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })
	return orders, len(orders), nil
}

func (m *memoryWriter) WithTx(ctx context.Context, fn func(context.Context, TxWriter) error) error {
	return fn(ctx, m)
}

func TestServiceCreate(t *testing.T) {
	store := newMemoryWriter()
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{SupplierID: 1})
	require.ErrorIs(t, err, ErrValidation, "lines required")

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{SKUID: 1, OrderedQty: 0}}})
	require.ErrorIs(t, err, ErrValidation, "positive quantity required")

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{SKUID: 1, OrderedQty: 10, Price: "abc"}}})
	require.ErrorIs(t, err, ErrValidation, "price must parse")

	order, err := svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{
		{SKUID: 1, OrderedQty: 10, Price: "4.50"},
		{SKUID: 2, OrderedQty: 3},
	}})
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, order.Status)
	assert.NotEmpty(t, order.Number)

	_, lines, err := store.GetPO(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Zero(t, lines[0].ReceivedQty)
}

func TestServiceApproveAndCancel(t *testing.T) {
	store := newMemoryWriter()
	svc := NewService(store, nil)
	ctx := context.Background()

	order, err := svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{SKUID: 1, OrderedQty: 10}}})
	require.NoError(t, err)

	require.NoError(t, svc.Approve(ctx, order.ID, 1))
	got, _, err := store.GetPO(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)

	// Approve is DRAFT-only.
	require.ErrorIs(t, svc.Approve(ctx, order.ID, 1), ErrInvalidState)

	// Cancel is blocked once any quantity has been received.
	lines, err := store.LinesByPO(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, store.SetLineReceived(ctx, lines[0].ID, 4))
	require.ErrorIs(t, svc.Cancel(ctx, order.ID, 1), ErrInvalidState)

	require.NoError(t, store.SetLineReceived(ctx, lines[0].ID, 0))
	require.NoError(t, svc.Cancel(ctx, order.ID, 1))
	got, _, err = store.GetPO(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}
