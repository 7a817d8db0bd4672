package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sage-erp/pharmacy/internal/archive"
	jobmetrics "github.com/sage-erp/pharmacy/internal/jobs"
)

// Sweeper archives finished orders.
type Sweeper interface {
	Sweep(ctx context.Context) (archive.SweepResult, error)
}

// ArchiveSweepJob runs the sweeper on each scheduled tick.
type ArchiveSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewArchiveSweepJob constructs the job handler.
func NewArchiveSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *ArchiveSweepJob {
	return &ArchiveSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep. Per-order failures are left for the next tick,
// so only a failure to run the sweep at all is reported to asynq.
func (j *ArchiveSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("archive sweep: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskArchiveSweep)
	result, err := j.Sweeper.Sweep(ctx)
	if err != nil {
		j.log().Error("archive sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	if len(result.Archived) > 0 || len(result.Failed) > 0 {
		j.log().Info("archive sweep completed",
			slog.Int("archived", len(result.Archived)),
			slog.Int("failed", len(result.Failed)))
	}
	return tracker.End(nil)
}

func (j *ArchiveSweepJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
