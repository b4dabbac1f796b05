package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/pkg/logger"
)

type countingJob struct {
	name  string
	runs  int32
	err   error
	block time.Duration
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	if j.block > 0 {
		select {
		case <-time.After(j.block):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler(t *testing.T, mutate ...func(*SchedulerConfig)) *Scheduler {
	t.Helper()
	cfg := DefaultSchedulerConfig()
	cfg.Logger = logger.Nop()
	cfg.StopTimeout = time.Second
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	return s
}

func TestScheduler_RunsIntervalJobs(t *testing.T) {
	s := newTestScheduler(t)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(20*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.Equal(t, "@every 20ms", info.Schedule)
	assert.GreaterOrEqual(t, info.RunCount, int64(2))
	assert.Zero(t, info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.True(t, info.LastResult.Success)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, snap.TotalExecutions, snap.TotalSuccesses)
	assert.InDelta(t, 1.0, snap.SuccessRate, 1e-9)
}

func TestScheduler_RegisterErrors(t *testing.T) {
	s := newTestScheduler(t)
	job := &countingJob{name: "dup"}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.Error(t, s.Register(&countingJob{name: "bad"}, NewCronSchedule("not a cron")))

	require.NoError(t, s.Unregister("dup"))
	assert.ErrorIs(t, s.Unregister("dup"), ErrJobNotFound)
	assert.Empty(t, s.ListJobs())
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	s := newTestScheduler(t)
	boom := errors.New("boom")
	job := &countingJob{name: "failing", err: boom}
	require.NoError(t, s.Register(job, NewCronSchedule("0 3 * * *")))

	var reported string
	s.OnJobError(func(name string, err error) { reported = name })

	res, err := s.RunNow(context.Background(), "failing")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.True(t, res.Manual)
	assert.False(t, res.Success)
	assert.Equal(t, "failing", reported)

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "failing", history[0].JobName)
	assert.Equal(t, int64(1), s.GetMetrics().Snapshot().TotalFailures)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_JobTimeoutCancelsRun(t *testing.T) {
	s := newTestScheduler(t, func(c *SchedulerConfig) { c.JobTimeout = 20 * time.Millisecond })
	job := &countingJob{name: "slow", block: time.Minute}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register(panicJob{}, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "panics")
	assert.ErrorContains(t, err, "job panic")
}

func TestScheduler_StartStopStates(t *testing.T) {
	s := newTestScheduler(t)
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
}

type panicJob struct{}

func (panicJob) Name() string                  { return "panics" }
func (panicJob) Description() string           { return "always panics" }
func (panicJob) Run(ctx context.Context) error { panic("nil map") }
