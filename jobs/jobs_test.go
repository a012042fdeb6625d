package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/autoservis/autoservis/internal/jobs"
	_ "github.com/autoservis/autoservis/testing"
)

type fakeSweeper struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakeSweeper) SweepExpired(context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) Invalidate(context.Context) error {
	f.calls++
	return nil
}

func TestSessionSweepJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	sweeper := &fakeSweeper{deleted: 4}
	job := NewSessionSweepJob(sweeper, nil, metrics)

	task, err := NewSessionSweepTask(time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, TaskSessionSweep, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, sweeper.calls)

	sweeper.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, nil)))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(4), values["autoservis_sessions_swept_total"])
	assert.Equal(t, float64(1), values["autoservis_jobs_failures_total"])
	assert.Equal(t, float64(2), values["autoservis_jobs_total"])
}

func TestSessionSweepSkipsRetryOnBadPayload(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := NewSessionSweepJob(sweeper, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskSessionSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, sweeper.calls)
}

func TestStatsInvalidateJob(t *testing.T) {
	inv := &fakeInvalidator{}
	job := NewStatsInvalidateJob(inv, nil, nil)
	task, err := NewStatsInvalidateTask(time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, inv.calls)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"failed_today":0}`, rec.Body.String())

	rec = serve(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":3`)

	rec = serve(stubInspector{err: errors.New("redis gone")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
