package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	lost     bool
	acquires int
	extends  int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) (bool, error) {
	f.extends++
	return !f.lost, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type testJob struct {
	name string
	rows int64
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) (int64, error) {
	t.runs++
	return t.rows, t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := &testJob{name: "meal-expiry", rows: 3}
	bad := &testJob{name: "order-ttl", rows: 1, err: errors.New("boom")}
	lock := &fakeLock{}
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(ok, bad),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, bad.runs)
	assert.Equal(t, 1, lock.releases)
	assert.Equal(t, 1, lock.extends)
	assert.False(t, lock.held)

	expected := `
# HELP mealmarket_job_runs_total Cron job executions by result.
# TYPE mealmarket_job_runs_total counter
mealmarket_job_runs_total{job="meal-expiry",result="succeeded"} 1
mealmarket_job_runs_total{job="order-ttl",result="failed"} 1
# HELP mealmarket_job_rows_affected_total Rows changed by cron jobs (meals deactivated, orders cancelled, ledger rows written).
# TYPE mealmarket_job_rows_affected_total counter
mealmarket_job_rows_affected_total{job="meal-expiry"} 3
mealmarket_job_rows_affected_total{job="order-ttl"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"mealmarket_job_runs_total", "mealmarket_job_rows_affected_total"))
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "meal-expiry"}
	lock := &fakeLock{held: true}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunCycleStopsWhenLeaseLost(t *testing.T) {
	first := &testJob{name: "meal-expiry"}
	second := &testJob{name: "order-ttl"}
	lock := &fakeLock{lost: true}
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	err = svc.runCycle(context.Background())
	require.ErrorIs(t, err, ErrLeaseLost)
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
	assert.Equal(t, 1, lock.releases)

	count, err := testutil.GatherAndCount(reg, "mealmarket_cron_lease_lost_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)

	svc, err := NewService(ServiceParams{Logger: testLogger(), Lock: &fakeLock{}})
	require.NoError(t, err)
	assert.Equal(t, defaultInterval, svc.interval)
}
