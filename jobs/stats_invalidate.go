package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/autoservis/autoservis/internal/jobs"
)

// Invalidator drops cached data.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// StatsInvalidateJob bumps the dashboard cache version.
type StatsInvalidateJob struct {
	stats   Invalidator
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewStatsInvalidateJob constructs the job handler.
func NewStatsInvalidateJob(stats Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatsInvalidateJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsInvalidateJob{stats: stats, logger: logger, metrics: metrics}
}

// Handle processes TaskStatsInvalidate tasks.
func (j *StatsInvalidateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if _, err := decodeSchedule(t); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.metrics.Track("stats_invalidate")
	if err := j.stats.Invalidate(ctx); err != nil {
		j.logger.Warn("stats invalidate failed", slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
