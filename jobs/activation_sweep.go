package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bodega/bodega-api/internal/jobs"
)

// Sweeper realigns product active flags with stock.
type Sweeper interface {
	SweepActivation(ctx context.Context) (int, error)
}

// ActivationSweepJob runs the catalog activation sweep.
type ActivationSweepJob struct {
	Sweeper Sweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewActivationSweepJob wires dependencies for the sweep handler.
func NewActivationSweepJob(sweeper Sweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *ActivationSweepJob {
	return &ActivationSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes TaskActivationSweep tasks.
func (j *ActivationSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("activation sweep: handler not configured")
	}
	var payload ActivationSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskActivationSweep)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	fixed, err := j.Sweeper.SweepActivation(ctx)
	if err != nil {
		logger(j.Logger).Error("activation sweep", slog.Any("error", err))
		return err
	}
	j.Metrics.AddProcessed(TaskActivationSweep, int64(fixed))
	logger(j.Logger).Info("activation sweep completed",
		slog.Int("fixed", fixed),
		slog.String("reason", payload.Reason),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
