// Package jobs holds the background maintenance tasks that run beside the
// API server: idempotency key expiry and FIFO ledger integrity scans.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "receiving:idempotency_cleanup"
	// TaskFifoIntegrityScan verifies lot sequence invariants.
	TaskFifoIntegrityScan = "ledger:fifo_integrity_scan"
)

// IdempotencyCleanupPayload bounds the retention window of the prune.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// FifoIntegrityPayload carries scheduling metadata for the scan.
type FifoIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewFifoIntegrityTask constructs the integrity scan task.
func NewFifoIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(FifoIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFifoIntegrityScan, body, asynq.Queue(QueueDefault)), nil
}

// Ctl wraps manual management helpers for the job queue.
type Ctl struct {
	client *asynq.Client
}

// NewCtl initialises the helpers using the provided Redis address.
func NewCtl(redisAddr string) (*Ctl, error) {
	return &Ctl{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}, nil
}

// Trigger enqueues a supported job by name with a default payload.
func (c *Ctl) Trigger(ctx context.Context, name string, retention time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs ctl: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case "fifo-scan", TaskFifoIntegrityScan:
		task, err = NewFifoIntegrityTask(time.Now().UTC())
	case "idempotency-cleanup", TaskIdempotencyCleanup:
		task, err = NewIdempotencyCleanupTask(retention)
	default:
		return nil, fmt.Errorf("jobs ctl: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// Close releases client resources.
func (c *Ctl) Close() error {
	return c.client.Close()
}
