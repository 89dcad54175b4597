package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/bodega/bodega-api/internal/jobs"
	"github.com/bodega/bodega-api/internal/products"
)

type fakeSweeper struct {
	fixed int
	err   error
	calls int
}

func (f *fakeSweeper) SweepActivation(context.Context) (int, error) {
	f.calls++
	return f.fixed, f.err
}

type fakeCleaner struct {
	retention time.Duration
	purged    int64
}

func (f *fakeCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.purged, nil
}

func TestLowStockTaskCarriesAlert(t *testing.T) {
	id := uuid.New()
	task, err := NewLowStockTask(products.LowStockAlert{ProductID: id, Name: "Yogurt", Stock: 1, Threshold: 3, Source: "sales:create"})
	require.NoError(t, err)
	require.Equal(t, TaskLowStockAlert, task.Type())

	var payload LowStockPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, id.String(), payload.ProductID)
	require.Equal(t, "sales:create", payload.Source)
}

func TestLowStockJobCountsAlerts(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewLowStockJob(nil, metrics)
	task, err := NewLowStockTask(products.LowStockAlert{ProductID: uuid.New(), Name: "Yogurt", Stock: 0, Threshold: 3, Source: "sales:amend"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockAlert, []byte("{"))), asynq.SkipRetry)
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskLowStockAlert, []byte("{}"))), asynq.SkipRetry)
}

func TestActivationSweepJob(t *testing.T) {
	sweeper := &fakeSweeper{fixed: 2}
	job := NewActivationSweepJob(sweeper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewActivationSweepTask("cron")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, sweeper.calls)

	sweeper.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))

	var unset *ActivationSweepJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestIdempotencyCleanupJobUsesRetention(t *testing.T) {
	cleaner := &fakeCleaner{purged: 4}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.retention)

	task, err = NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, DefaultIdempotencyRetention, cleaner.retention)

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, []byte(`{"retention_hours":-1}`))), asynq.SkipRetry)
}

func TestTrackerRecordsRuns(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewActivationSweepJob(&fakeSweeper{fixed: 3}, nil, metrics)
	task, err := NewActivationSweepTask("manual")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(registry, "bodega_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queues":[{"queue":"default","pending":0},{"queue":"alerts","pending":0}]}`, rr.Body.String())
}
