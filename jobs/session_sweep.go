package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/autoservis/autoservis/internal/jobs"
)

// SessionSweeper removes expired sessions and reports how many were deleted.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SessionSweepJob reclaims expired session rows. Expired sessions are already
// rejected on lookup, so the sweep only frees storage and is not audited.
type SessionSweepJob struct {
	sweeper SessionSweeper
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSessionSweepJob constructs the job handler.
func NewSessionSweepJob(sweeper SessionSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *SessionSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionSweepJob{sweeper: sweeper, logger: logger, metrics: metrics}
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeSchedule(t)
	if err != nil {
		j.logger.Warn("session sweep: bad payload", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track("session_sweep")
	deleted, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		j.logger.Error("session sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddSwept(deleted)
	attrs := []any{slog.Int64("deleted", deleted)}
	if !payload.ScheduledFor.IsZero() {
		attrs = append(attrs, slog.String("scheduled_for", payload.ScheduledFor.Format(time.RFC3339)))
	}
	j.logger.Info("session sweep finished", attrs...)
	return tracker.End(nil)
}
