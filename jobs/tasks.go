package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bodega/bodega-api/internal/products"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAlerts carries low-stock notifications.
	QueueAlerts = "alerts"

	// TaskLowStockAlert notifies that a product fell to the stock threshold.
	TaskLowStockAlert = "stock:low_alert"
	// TaskActivationSweep realigns product active flags with their stock.
	TaskActivationSweep = "products:activation_sweep"
	// TaskIdempotencyCleanup purges expired crear_venta replay keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LowStockPayload is the body of a low-stock alert task.
type LowStockPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
	Source    string `json:"source"`
}

// ActivationSweepPayload configures an activation sweep.
type ActivationSweepPayload struct {
	Reason string `json:"reason"`
}

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// DefaultIdempotencyRetention keeps replay keys for a day.
const DefaultIdempotencyRetention = 24 * time.Hour

// NewLowStockTask builds a low-stock alert task for alert.
func NewLowStockTask(alert products.LowStockAlert) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockPayload{
		ProductID: alert.ProductID.String(),
		Name:      alert.Name,
		Stock:     alert.Stock,
		Threshold: alert.Threshold,
		Source:    alert.Source,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, body, asynq.Queue(QueueAlerts), asynq.MaxRetry(3)), nil
}

// NewActivationSweepTask builds an activation sweep task.
func NewActivationSweepTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(ActivationSweepPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskActivationSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask builds a cleanup task keeping keys newer than retention.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	hours := int(retention / time.Hour)
	if hours <= 0 {
		hours = int(DefaultIdempotencyRetention / time.Hour)
	}
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: hours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
