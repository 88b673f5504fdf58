package receiving

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-wms/meridian-wms/internal/ledger"
	"github.com/meridian-wms/meridian-wms/internal/po"
	"github.com/meridian-wms/meridian-wms/internal/shared"
	_ "github.com/meridian-wms/meridian-wms/testing"
)

// fakeRepo is an in-memory RepositoryPort and TxRepository. WithTx snapshots
// state up front and restores it when fn fails, matching transactional
// all-or-nothing behaviour.
type fakeRepo struct {
	mu        sync.Mutex
	receipts  map[int64]GoodsReceipt
	lines     map[int64]GoodsReceiptLine
	lots      map[int64]ledger.Lot
	seqs      map[string]int64
	orders    map[int64]po.PurchaseOrder
	poLines   map[int64]po.Line
	movements []Movement
	nextID    int64

	failLotSKU int64 // CreateLot fails for this SKU when non-zero
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		receipts: map[int64]GoodsReceipt{},
		lines:    map[int64]GoodsReceiptLine{},
		lots:     map[int64]ledger.Lot{},
		seqs:     map[string]int64{},
		orders:   map[int64]po.PurchaseOrder{},
		poLines:  map[int64]po.Line{},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) snapshot() *fakeRepo {
	s := newFakeRepo()
	for k, v := range f.receipts {
		s.receipts[k] = v
	}
	for k, v := range f.lines {
		s.lines[k] = v
	}
	for k, v := range f.lots {
		s.lots[k] = v
	}
	for k, v := range f.seqs {
		s.seqs[k] = v
	}
	for k, v := range f.orders {
		s.orders[k] = v
	}
	for k, v := range f.poLines {
		s.poLines[k] = v
	}
	s.movements = append([]Movement(nil), f.movements...)
	s.nextID = f.nextID
	return s
}

func (f *fakeRepo) restore(s *fakeRepo) {
	f.receipts = s.receipts
	f.lines = s.lines
	f.lots = s.lots
	f.seqs = s.seqs
	f.orders = s.orders
	f.poLines = s.poLines
	f.movements = s.movements
	f.nextID = s.nextID
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := f.snapshot()
	if err := fn(ctx, f); err != nil {
		f.restore(before)
		return err
	}
	return nil
}

func (f *fakeRepo) CreateReceipt(_ context.Context, receipt GoodsReceipt) (GoodsReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt.ID = f.id()
	receipt.Version = 1
	receipt.CreatedAt = time.Now()
	f.receipts[receipt.ID] = receipt
	return receipt, nil
}

func (f *fakeRepo) GetReceipt(_ context.Context, id int64) (GoodsReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	receipt.Lines = f.receiptLines(id)
	return receipt, nil
}

func (f *fakeRepo) List(_ context.Context, filter ListFilter) ([]GoodsReceipt, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GoodsReceipt, 0)
	for _, r := range f.receipts {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, len(out), nil
}

func (f *fakeRepo) receiptLines(receiptID int64) []GoodsReceiptLine {
	lines := make([]GoodsReceiptLine, 0)
	for _, l := range f.lines {
		if l.ReceiptID == receiptID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineOrder < lines[j].LineOrder })
	return lines
}

func (f *fakeRepo) GetReceiptForUpdate(_ context.Context, id int64) (GoodsReceipt, error) {
	receipt, ok := f.receipts[id]
	if !ok {
		return GoodsReceipt{}, ErrNotFound
	}
	return receipt, nil
}

func (f *fakeRepo) GetLines(_ context.Context, receiptID int64) ([]GoodsReceiptLine, error) {
	return f.receiptLines(receiptID), nil
}

func (f *fakeRepo) UpdateStatus(_ context.Context, id, version int64, status Status, at time.Time) error {
	receipt := f.receipts[id]
	if receipt.Version != version {
		return ErrConflict
	}
	receipt.Status = status
	receipt.Version++
	switch status {
	case StatusReceiving:
		receipt.ReceivedAt = &at
	case StatusPosted:
		receipt.PostedAt = &at
	case StatusReversed:
		receipt.ReversedAt = &at
	}
	f.receipts[id] = receipt
	return nil
}

func (f *fakeRepo) SetAggregates(_ context.Context, receiptID int64, totalQty float64, totalValue decimal.Decimal) error {
	receipt := f.receipts[receiptID]
	receipt.TotalQty = totalQty
	receipt.TotalValue = totalValue
	f.receipts[receiptID] = receipt
	return nil
}

func (f *fakeRepo) InsertLine(_ context.Context, line GoodsReceiptLine) (GoodsReceiptLine, error) {
	line.ID = f.id()
	line.LineOrder = len(f.receiptLines(line.ReceiptID)) + 1
	f.lines[line.ID] = line
	return line, nil
}

func (f *fakeRepo) UpdateLine(_ context.Context, line GoodsReceiptLine) error {
	existing, ok := f.lines[line.ID]
	if !ok || existing.ReceiptID != line.ReceiptID {
		return ErrLineNotFound
	}
	line.LineOrder = existing.LineOrder
	line.FifoSequence = existing.FifoSequence
	f.lines[line.ID] = line
	return nil
}

func (f *fakeRepo) DeleteLine(_ context.Context, receiptID, lineID int64) error {
	existing, ok := f.lines[lineID]
	if !ok || existing.ReceiptID != receiptID {
		return ErrLineNotFound
	}
	delete(f.lines, lineID)
	return nil
}

func (f *fakeRepo) SetLineSequence(_ context.Context, lineID, seq int64) error {
	line := f.lines[lineID]
	line.FifoSequence = &seq
	f.lines[lineID] = line
	return nil
}

func (f *fakeRepo) InsertMovement(_ context.Context, m Movement) error {
	m.ID = f.id()
	f.movements = append(f.movements, m)
	return nil
}

func (f *fakeRepo) NextSequence(_ context.Context, skuID, locationID int64) (int64, error) {
	key := fmt.Sprintf("%d:%d", skuID, locationID)
	f.seqs[key]++
	return f.seqs[key], nil
}

func (f *fakeRepo) CreateLot(_ context.Context, lot ledger.Lot) (int64, error) {
	if f.failLotSKU != 0 && lot.SKUID == f.failLotSKU {
		return 0, fmt.Errorf("lot insert failed")
	}
	lot.ID = f.id()
	lot.CreatedAt = time.Now()
	f.lots[lot.ID] = lot
	return lot.ID, nil
}

func (f *fakeRepo) ReverseLots(_ context.Context, receiptID int64) ([]ledger.Lot, error) {
	out := make([]ledger.Lot, 0)
	for id, lot := range f.lots {
		if lot.ReceiptID != receiptID || lot.Status != ledger.LotStatusActive {
			continue
		}
		if lot.RemainingQty != lot.OriginalQty {
			return nil, fmt.Errorf("lot %d: %w", id, ledger.ErrLotConsumed)
		}
		lot.Status = ledger.LotStatusReversed
		lot.RemainingQty = 0
		f.lots[id] = lot
		out = append(out, lot)
	}
	return out, nil
}

func (f *fakeRepo) ApplyPODelta(ctx context.Context, poLineID int64, delta float64) (po.ApplyResult, error) {
	return po.ApplyReceipt(ctx, (*fakePOStore)(f), poLineID, delta)
}

// fakePOStore adapts fakeRepo to the purchase order reconciler surface.
type fakePOStore fakeRepo

func (f *fakePOStore) GetLineForUpdate(_ context.Context, lineID int64) (po.Line, error) {
	line, ok := f.poLines[lineID]
	if !ok {
		return po.Line{}, po.ErrLineNotFound
	}
	return line, nil
}

func (f *fakePOStore) SetLineReceived(_ context.Context, lineID int64, received float64) error {
	line := f.poLines[lineID]
	line.ReceivedQty = received
	f.poLines[lineID] = line
	return nil
}

func (f *fakePOStore) GetPOForUpdate(_ context.Context, poID int64) (po.PurchaseOrder, error) {
	order, ok := f.orders[poID]
	if !ok {
		return po.PurchaseOrder{}, po.ErrPONotFound
	}
	return order, nil
}

func (f *fakePOStore) LinesByPO(_ context.Context, poID int64) ([]po.Line, error) {
	lines := make([]po.Line, 0)
	for _, l := range f.poLines {
		if l.POID == poID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ID < lines[j].ID })
	return lines, nil
}

func (f *fakePOStore) SetPOStatus(_ context.Context, poID int64, status po.Status) error {
	order := f.orders[poID]
	order.Status = status
	f.orders[poID] = order
	return nil
}

// fakeMaster accepts any SKU and location id below 1000.
type fakeMaster struct{}

func (fakeMaster) SKUExists(_ context.Context, id int64) (bool, error)      { return id < 1000, nil }
func (fakeMaster) LocationExists(_ context.Context, id int64) (bool, error) { return id < 1000, nil }

type fakePOReader struct{ repo *fakeRepo }

func (r fakePOReader) GetPO(ctx context.Context, poID int64) (po.PurchaseOrder, []po.Line, error) {
	order, err := (*fakePOStore)(r.repo).GetPOForUpdate(ctx, poID)
	if err != nil {
		return po.PurchaseOrder{}, nil, err
	}
	lines, err := (*fakePOStore)(r.repo).LinesByPO(ctx, poID)
	return order, lines, err
}

type fakeIdem struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (f *fakeIdem) CheckAndInsert(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeIdem) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(_ context.Context, skuID, locationID int64) {
	f.invalidated = append(f.invalidated, fmt.Sprintf("%d:%d", skuID, locationID))
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, fakeMaster{}, fakePOReader{repo: repo}, nil, nil, nil, nil, slog.Default())
}

func seedPO(repo *fakeRepo, status po.Status, orderedQtys ...float64) (int64, []int64) {
	poID := repo.id()
	repo.orders[poID] = po.PurchaseOrder{ID: poID, Number: fmt.Sprintf("PO-%d", poID), Status: status}
	lineIDs := make([]int64, 0, len(orderedQtys))
	for _, qty := range orderedQtys {
		id := repo.id()
		repo.poLines[id] = po.Line{ID: id, POID: poID, SKUID: 1, OrderedQty: qty}
		lineIDs = append(lineIDs, id)
	}
	return poID, lineIDs
}

func draftWithLine(t *testing.T, svc *Service, req LineRequest) GoodsReceipt {
	t.Helper()
	receipt, err := svc.Create(context.Background(), CreateReceiptRequest{LocationID: 10}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(context.Background(), receipt.ID, req, 1)
	require.NoError(t, err)
	return receipt
}

func TestPostCreatesLotsWithFifoSequences(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10}, 7)
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, ReceivedQty: 12, AcceptedQty: 10, RejectedQty: 2, CostPrice: "4.50"}, 7)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 2, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "2.00"}, 7)
	require.NoError(t, err)
	// Fully rejected lines produce no lot.
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 3, ReceivedQty: 4, RejectedQty: 4, CostPrice: "9.99"}, 7)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, receipt.ID, 7)
	require.NoError(t, err)

	result, err := svc.Post(ctx, receipt.ID, 7)
	require.NoError(t, err)

	assert.Equal(t, StatusPosted, result.Receipt.Status)
	assert.NotNil(t, result.Receipt.PostedAt)
	require.Len(t, result.Lots, 2)

	assert.InDelta(t, 15.0, result.Receipt.TotalQty, 1e-9)
	assert.True(t, result.Receipt.TotalValue.Equal(decimal.RequireFromString("55.00")),
		"total value %s", result.Receipt.TotalValue)

	for _, created := range result.Lots {
		lot := repo.lots[created.LotID]
		assert.Equal(t, ledger.LotStatusActive, lot.Status)
		assert.Equal(t, lot.OriginalQty, lot.RemainingQty)
		assert.Equal(t, receipt.ID, lot.ReceiptID)
		assert.Equal(t, int64(1), lot.FifoSequence, "first lot per sku+location")
		line := repo.lines[created.LineID]
		require.NotNil(t, line.FifoSequence)
		assert.Equal(t, created.FifoSequence, *line.FifoSequence)
	}

	require.Len(t, repo.movements, 1)
	assert.Equal(t, MovementReceipt, repo.movements[0].Type)
	assert.InDelta(t, 15.0, repo.movements[0].TotalQty, 1e-9)
}

func TestPostSequencesAdvancePerSKULocation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	var sequences []int64
	for i := 0; i < 3; i++ {
		receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
		result, err := svc.Post(ctx, receipt.ID, 1)
		require.NoError(t, err)
		require.Len(t, result.Lots, 1)
		sequences = append(sequences, result.Lots[0].FifoSequence)
	}
	assert.Equal(t, []int64{1, 2, 3}, sequences)

	// A different location starts its own sequence.
	receipt, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 20}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"}, 1)
	require.NoError(t, err)
	result, err := svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Lots[0].FifoSequence)
}

func TestPostRequiresAcceptedQuantity(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 4, RejectedQty: 4, CostPrice: "1.00"})
	_, err := svc.Post(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrNoAcceptedLines)

	got, err := svc.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Empty(t, repo.lots)
}

func TestPostTwiceRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
	_, err := svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)

	_, err = svc.Post(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, repo.lots, 1, "no duplicate lots")
	assert.Len(t, repo.movements, 1)
}

func TestPostReconcilesPurchaseOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	poID, lineIDs := seedPO(repo, po.StatusApproved, 100)

	first, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &poID}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, first.ID, LineRequest{SKUID: 1, POLineID: &lineIDs[0], ReceivedQty: 60, AcceptedQty: 60, CostPrice: "3.00"}, 1)
	require.NoError(t, err)
	result, err := svc.Post(ctx, first.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, po.StatusPartiallyReceived, result.POStatus)
	assert.Empty(t, result.Warnings)
	assert.InDelta(t, 60.0, repo.poLines[lineIDs[0]].ReceivedQty, 1e-9)

	second, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &poID}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, second.ID, LineRequest{SKUID: 1, POLineID: &lineIDs[0], ReceivedQty: 40, AcceptedQty: 40, CostPrice: "3.00"}, 1)
	require.NoError(t, err)
	result, err = svc.Post(ctx, second.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, po.StatusReceived, result.POStatus)
	assert.InDelta(t, 100.0, repo.poLines[lineIDs[0]].ReceivedQty, 1e-9)
}

func TestPostOverReceiptFlaggedNotClamped(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	poID, lineIDs := seedPO(repo, po.StatusApproved, 50)

	receipt, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &poID}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, POLineID: &lineIDs[0], ReceivedQty: 80, AcceptedQty: 80, CostPrice: "1.00"}, 1)
	require.NoError(t, err)

	result, err := svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.InDelta(t, 50.0, result.Warnings[0].OrderedQty, 1e-9)
	assert.InDelta(t, 80.0, result.Warnings[0].ReceivedQty, 1e-9)
	assert.InDelta(t, 80.0, repo.poLines[lineIDs[0]].ReceivedQty, 1e-9, "recorded as-is")
	assert.Equal(t, po.StatusReceived, result.POStatus)
}

func TestPostRollsBackOnFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	poID, lineIDs := seedPO(repo, po.StatusApproved, 100)

	receipt, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &poID}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, POLineID: &lineIDs[0], ReceivedQty: 30, AcceptedQty: 30, CostPrice: "1.00"}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 2, ReceivedQty: 10, AcceptedQty: 10, CostPrice: "1.00"}, 1)
	require.NoError(t, err)

	repo.failLotSKU = 2
	_, err = svc.Post(ctx, receipt.ID, 1)
	require.Error(t, err)

	got, err := svc.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status, "status unchanged")
	assert.Empty(t, repo.lots, "no partial lots")
	assert.Empty(t, repo.movements)
	assert.Empty(t, repo.seqs, "no sequence consumed")
	assert.InDelta(t, 0.0, repo.poLines[lineIDs[0]].ReceivedQty, 1e-9, "po untouched")
	assert.Equal(t, po.StatusApproved, repo.orders[poID].Status)

	// The same receipt posts cleanly once the fault clears.
	repo.failLotSKU = 0
	_, err = svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)
}

func TestReverseTombstonesLotsAndRestoresPO(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	poID, lineIDs := seedPO(repo, po.StatusApproved, 100)

	receipt, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &poID}, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, POLineID: &lineIDs[0], ReceivedQty: 60, AcceptedQty: 60, CostPrice: "2.50"}, 1)
	require.NoError(t, err)
	posted, err := svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, po.StatusPartiallyReceived, posted.POStatus)

	result, err := svc.Reverse(ctx, receipt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusReversed, result.Receipt.Status)
	assert.NotNil(t, result.Receipt.ReversedAt)
	require.Len(t, result.Lots, 1)
	assert.Equal(t, ledger.LotStatusReversed, result.Lots[0].Status)
	assert.Zero(t, result.Lots[0].RemainingQty)

	// Lot row survives as a tombstone, never deleted.
	lot := repo.lots[result.Lots[0].ID]
	assert.Equal(t, ledger.LotStatusReversed, lot.Status)

	assert.InDelta(t, 0.0, repo.poLines[lineIDs[0]].ReceivedQty, 1e-9)
	assert.Equal(t, po.StatusApproved, repo.orders[poID].Status)

	require.Len(t, repo.movements, 2)
	rev := repo.movements[1]
	assert.Equal(t, movementRef(receipt.ID, MovementReceipt), repo.movements[0].RefID)
	assert.Equal(t, movementRef(receipt.ID, MovementReceiptReversal), rev.RefID)
	assert.NotEqual(t, repo.movements[0].RefID, rev.RefID)
	assert.Equal(t, MovementReceiptReversal, rev.Type)
	assert.InDelta(t, -60.0, rev.TotalQty, 1e-9)
	assert.True(t, rev.TotalValue.Equal(decimal.RequireFromString("-150.00")), "value %s", rev.TotalValue)
}

func TestReverseConsumedLotRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 10, AcceptedQty: 10, CostPrice: "1.00"})
	result, err := svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)

	lot := repo.lots[result.Lots[0].LotID]
	lot.RemainingQty = 4
	repo.lots[lot.ID] = lot

	_, err = svc.Reverse(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrLotConsumed)

	got, err := svc.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, got.Status, "reversal rolled back")
	assert.Equal(t, ledger.LotStatusActive, repo.lots[lot.ID].Status)
	assert.Len(t, repo.movements, 1)
}

func TestReverseRequiresPostedStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
	_, err := svc.Reverse(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIdempotencyGuardsPostAndReverse(t *testing.T) {
	repo := newFakeRepo()
	idem := &fakeIdem{}
	svc := NewService(repo, fakeMaster{}, fakePOReader{repo: repo}, nil, idem, nil, nil, slog.Default())
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 4, RejectedQty: 4, CostPrice: "1.00"})

	// A failed post releases its key so a corrected retry can claim it.
	_, err := svc.Post(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrNoAcceptedLines)
	assert.Empty(t, idem.keys)

	_, err = svc.UpdateLine(ctx, receipt.ID, repo.receiptLines(receipt.ID)[0].ID,
		LineRequest{SKUID: 1, ReceivedQty: 4, AcceptedQty: 4, CostPrice: "1.00"}, 1)
	require.NoError(t, err)
	_, err = svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)

	// A replayed post on the now-POSTED receipt reports the status guard,
	// not the key it would otherwise trip.
	_, err = svc.Post(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reverse(ctx, receipt.ID, 1)
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIdempotencyKeyBlocksRacingPost(t *testing.T) {
	repo := newFakeRepo()
	idem := &fakeIdem{}
	svc := NewService(repo, fakeMaster{}, fakePOReader{repo: repo}, nil, idem, nil, nil, slog.Default())
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})

	// A racing submission claimed the key but has not committed yet, so the
	// receipt still looks postable. Only the key can reject this one.
	require.NoError(t, idem.CheckAndInsert(ctx, "GR-POST:"+receipt.GRNo, "receiving"))

	_, err := svc.Post(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, repo.lots, "losing post must not create lots")
}

func TestLineEditing(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 10}, 1)
	require.NoError(t, err)

	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, ReceivedQty: 10, AcceptedQty: 6, RejectedQty: 3, CostPrice: "1.00"}, 1)
	require.ErrorIs(t, err, ErrValidation, "quantity split must balance")

	_, err = svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, ReceivedQty: 10, AcceptedQty: 10, CostPrice: "not-money"}, 1)
	require.ErrorIs(t, err, ErrValidation)

	line, err := svc.AddLine(ctx, receipt.ID, LineRequest{SKUID: 1, ReceivedQty: 10, AcceptedQty: 10, CostPrice: "2.00"}, 1)
	require.NoError(t, err)
	assert.Equal(t, QCPassed, line.QCStatus)

	got, err := svc.Get(ctx, receipt.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, got.TotalQty, 1e-9)

	updated, err := svc.UpdateLine(ctx, receipt.ID, line.ID, LineRequest{SKUID: 1, ReceivedQty: 10, AcceptedQty: 7, RejectedQty: 3, CostPrice: "2.00"}, 1)
	require.NoError(t, err)
	assert.Equal(t, QCPartial, updated.QCStatus)
	got, _ = svc.Get(ctx, receipt.ID)
	assert.InDelta(t, 7.0, got.TotalQty, 1e-9)
	assert.True(t, got.TotalValue.Equal(decimal.RequireFromString("14.00")))

	require.NoError(t, svc.RemoveLine(ctx, receipt.ID, line.ID, 1))
	got, _ = svc.Get(ctx, receipt.ID)
	assert.Zero(t, got.TotalQty)

	// Posted receipts are frozen.
	frozen := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
	_, err = svc.Post(ctx, frozen.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, frozen.ID, LineRequest{SKUID: 1, ReceivedQty: 1, AcceptedQty: 1, CostPrice: "1.00"}, 1)
	require.ErrorIs(t, err, ErrNotEditable)
	_, err = svc.UpdateLine(ctx, frozen.ID, repo.receiptLines(frozen.ID)[0].ID,
		LineRequest{SKUID: 1, ReceivedQty: 1, AcceptedQty: 1, CostPrice: "1.00"}, 1)
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestCreateValidatesReferences(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateReceiptRequest{LocationID: 5000}, 1)
	require.ErrorIs(t, err, ErrValidation)

	missing := int64(999)
	_, err = svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &missing}, 1)
	require.ErrorIs(t, err, ErrValidation)

	poID, _ := seedPO(repo, po.StatusDraft, 10)
	_, err = svc.Create(ctx, CreateReceiptRequest{LocationID: 10, POID: &poID}, 1)
	require.ErrorIs(t, err, ErrPONotReceivable)
}

func TestCancelLifecycle(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
	got, err := svc.Cancel(ctx, receipt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	_, err = svc.Post(ctx, receipt.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)

	posted := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
	_, err = svc.Post(ctx, posted.ID, 1)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, posted.ID, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCacheInvalidationAfterPost(t *testing.T) {
	repo := newFakeRepo()
	cache := &fakeCache{}
	svc := NewService(repo, fakeMaster{}, fakePOReader{repo: repo}, nil, nil, cache, nil, slog.Default())
	ctx := context.Background()

	receipt := draftWithLine(t, svc, LineRequest{SKUID: 1, ReceivedQty: 5, AcceptedQty: 5, CostPrice: "1.00"})
	_, err := svc.Post(ctx, receipt.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"1:10"}, cache.invalidated)
}
