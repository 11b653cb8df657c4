package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// OverdueMarker is the slice of the transfer engine the scan needs.
type OverdueMarker interface {
	MarkOverdueInstallments(ctx context.Context) (int64, error)
}

// OverdueScanJob marks unpaid installments past their due date as
// overdue. Advisory data only; the scan never touches transfer
// amounts or balances.
type OverdueScanJob struct {
	Marker OverdueMarker
	Logger *slog.Logger
}

// NewOverdueScanJob initialises the scan handler.
func NewOverdueScanJob(marker OverdueMarker, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{Marker: marker, Logger: logger}
}

// Handle executes the scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Marker == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	start := time.Now()
	flipped, err := j.Marker.MarkOverdueInstallments(ctx)
	if err != nil {
		j.logger().Error("overdue scan failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("overdue scan complete",
		slog.Int64("flagged", flipped),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// KeyCleaner is the idempotency-store slice the cleanup job needs.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob prunes idempotency keys past retention.
type IdempotencyCleanupJob struct {
	Cleaner KeyCleaner
	Logger  *slog.Logger
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(cleaner KeyCleaner, logger *slog.Logger) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Cleaner: cleaner, Logger: logger}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	if err := j.Cleaner.Cleanup(ctx, time.Duration(payload.RetentionHours)*time.Hour); err != nil {
		j.logger().Error("idempotency cleanup failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("idempotency cleanup complete", slog.Int("retention_hours", payload.RetentionHours))
	return nil
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
