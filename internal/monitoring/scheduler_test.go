package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkEvery = "@every 3m"

type countingJobs struct {
	collects int32
	checks   int32
	panicky  bool
}

func (j *countingJobs) CollectAll(context.Context) error {
	atomic.AddInt32(&j.collects, 1)
	if j.panicky {
		panic("collect exploded")
	}
	return errors.New("partial failure")
}

func (j *countingJobs) CheckAll(context.Context) (int, error) {
	atomic.AddInt32(&j.checks, 1)
	return 1, nil
}

func TestScheduler_RunsJobs(t *testing.T) {
	jobs := &countingJobs{}
	s := NewScheduler(jobs, "@every 1s", "@every 1s")

	require.NoError(t, s.Start(context.Background()))
	// повторный запуск игнорируется
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&jobs.collects) > 0 && atomic.LoadInt32(&jobs.checks) > 0
	}, 5*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestScheduler_RecoversFromPanic(t *testing.T) {
	jobs := &countingJobs{panicky: true}
	s := NewScheduler(jobs, "@every 1s", "@every 1h")

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&jobs.collects) >= 2
	}, 5*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingJobs{}, "not a cron", checkEvery)
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collect")

	s = NewScheduler(&countingJobs{}, "0 0 6,14 * * *", "*/5 * * * *")
	err = s.Start(context.Background())
	require.Error(t, err, "five-field specs are rejected")
	assert.Contains(t, err.Error(), "check")

	s.Stop()
}

func TestScheduler_SkipsWhenContextDone(t *testing.T) {
	jobs := &countingJobs{}
	s := NewScheduler(jobs, "@every 1h", "@every 1h")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runCollect(ctx)
	s.runCheck(ctx)
	assert.Zero(t, atomic.LoadInt32(&jobs.collects))
	assert.Zero(t, atomic.LoadInt32(&jobs.checks))
}

func TestCronParser_DefaultSchedules(t *testing.T) {
	sched, err := CronParser().Parse("0 0 6,14 * * *")
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), sched.Next(from))
	assert.Equal(t, time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC), sched.Next(sched.Next(from)))

	every, err := CronParser().Parse(checkEvery)
	require.NoError(t, err)
	assert.Equal(t, from.Add(3*time.Minute), every.Next(from))
}
