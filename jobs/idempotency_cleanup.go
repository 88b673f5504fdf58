package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-wms/meridian-wms/internal/jobs"
	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// IdempotencyCleanupJob prunes idempotency keys past their retention window
// so replayed post and reverse requests eventually become submittable again.
type IdempotencyCleanupJob struct {
	Store     *shared.IdempotencyStore
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Retention time.Duration
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics, retention time.Duration) *IdempotencyCleanupJob {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics, Retention: retention}
}

// Handle executes one prune pass.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = j.Retention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	if err := j.Store.Cleanup(ctx, retention); err != nil {
		if j.Logger != nil {
			j.Logger.Error("idempotency cleanup", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	_ = tracker.End(nil)
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned", slog.Duration("retention", retention))
	}
	return nil
}
