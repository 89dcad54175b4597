package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bodega/bodega-api/internal/jobs"
)

// LowStockJob reports products that fell to the configured threshold.
type LowStockJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockJob wires dependencies for the alert handler.
func NewLowStockJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockJob {
	return &LowStockJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockAlert tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("low stock: handler not configured")
	}
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.ProductID == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLowStockAlert)
	defer func() { err = tracker.End(err) }()

	level := slog.LevelWarn
	if payload.Stock <= 0 {
		level = slog.LevelError
	}
	logger(j.Logger).Log(ctx, level, "low stock",
		slog.String("product_id", payload.ProductID),
		slog.String("name", payload.Name),
		slog.Int("stock", payload.Stock),
		slog.Int("threshold", payload.Threshold),
		slog.String("source", payload.Source),
	)
	j.Metrics.AddLowStockAlert(payload.Source)
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
