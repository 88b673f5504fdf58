package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-wms/meridian-wms/internal/jobs"
)

// FifoIntegrityJob verifies the lot ledger invariants that posting relies
// on: sequence uniqueness per SKU and location, no issued sequence above the
// counter, and remaining quantity within the original quantity. Violations
// are logged for operator follow-up; the scan itself never mutates data.
type FifoIntegrityJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewFifoIntegrityJob initialises the integrity scan handler.
func NewFifoIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *FifoIntegrityJob {
	return &FifoIntegrityJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes one scan pass.
func (j *FifoIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("fifo integrity: handler not configured")
	}
	var payload FifoIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.clock()
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracker := j.Metrics.Track(TaskFifoIntegrityScan)
	var resultErr error
	defer func() { _ = tracker.End(resultErr) }()

	duplicates, err := j.countRows(ctx, `
		SELECT count(*) FROM (
			SELECT sku_id, location_id, fifo_sequence
			FROM inventory_lots
			GROUP BY sku_id, location_id, fifo_sequence
			HAVING count(*) > 1
		) d`)
	if err != nil {
		resultErr = fmt.Errorf("duplicate sequence scan: %w", err)
		return resultErr
	}

	orphans, err := j.countRows(ctx, `
		SELECT count(*) FROM inventory_lots l
		LEFT JOIN fifo_sequences s
			ON s.sku_id = l.sku_id AND s.location_id = l.location_id
		WHERE l.fifo_sequence > COALESCE(s.last_seq, 0)`)
	if err != nil {
		resultErr = fmt.Errorf("orphan sequence scan: %w", err)
		return resultErr
	}

	overdrawn, err := j.countRows(ctx, `
		SELECT count(*) FROM inventory_lots
		WHERE remaining_qty < 0 OR remaining_qty > original_qty`)
	if err != nil {
		resultErr = fmt.Errorf("overdrawn lot scan: %w", err)
		return resultErr
	}

	stale, err := j.countRows(ctx, `
		SELECT count(*) FROM inventory_lots
		WHERE status = 'REVERSED' AND remaining_qty <> 0`)
	if err != nil {
		resultErr = fmt.Errorf("stale tombstone scan: %w", err)
		return resultErr
	}

	j.Metrics.AddViolations("duplicate_sequence", duplicates)
	j.Metrics.AddViolations("orphan_sequence", orphans)
	j.Metrics.AddViolations("overdrawn_lot", overdrawn)
	j.Metrics.AddViolations("stale_tombstone", stale)

	total := duplicates + orphans + overdrawn + stale
	attrs := []any{
		slog.Int("duplicate_sequences", duplicates),
		slog.Int("orphan_sequences", orphans),
		slog.Int("overdrawn_lots", overdrawn),
		slog.Int("stale_tombstones", stale),
		slog.Duration("took", j.clock().Sub(start)),
	}
	if total > 0 {
		logger.Error("fifo integrity violations found", attrs...)
		resultErr = fmt.Errorf("fifo integrity: %d violations", total)
		return resultErr
	}
	logger.Info("fifo integrity scan clean", attrs...)
	return nil
}

func (j *FifoIntegrityJob) countRows(ctx context.Context, query string) (int, error) {
	var n int
	if err := j.Pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
