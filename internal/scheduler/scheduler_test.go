package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
)

type countingSweeper struct{ calls atomic.Int32 }

func (c *countingSweeper) ReconcileAllOverdueFines(ctx context.Context) (int, error) {
	c.calls.Add(1)
	return 0, nil
}

type noopReconciler struct{}

func (noopReconciler) ReconcileAvailability(ctx context.Context, actor circulation.AuthContext) ([]circulation.CounterFix, error) {
	return nil, nil
}

type memoryQueue struct{ names []string }

func (q *memoryQueue) Enqueue(ctx context.Context, task backlite.Task) (string, error) {
	q.names = append(q.names, task.Config().Name)
	return "id", nil
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("15 0 * * *"))
	assert.NoError(t, ValidateSchedule("0 3 * * 0"))
	assert.Error(t, ValidateSchedule("every day"))
	assert.Error(t, ValidateSchedule("0 0 0 * * *"))
}

func TestNew_Timezone(t *testing.T) {
	_, err := New("Local", 0)
	assert.NoError(t, err)
	_, err = New("Europe/Berlin", 0)
	assert.NoError(t, err)
	_, err = New("Mars/Olympus", 0)
	assert.Error(t, err)
}

func TestScheduler_Add(t *testing.T) {
	s, err := New("UTC", time.Second)
	require.NoError(t, err)

	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Add("a", "*/5 * * * *", noop))
	assert.Error(t, s.Add("a", "*/5 * * * *", noop), "duplicate name")
	assert.Error(t, s.Add("b", "nonsense", noop))
	assert.NoError(t, s.Add("c", "", noop), "empty schedule disables the job")

	assert.ErrorContains(t, s.RunNow("c"), "unknown job")
}

func TestScheduler_RunNow(t *testing.T) {
	s, err := New("UTC", time.Second)
	require.NoError(t, err)

	var runs atomic.Int32
	require.NoError(t, s.Add("count", "0 0 1 1 *", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}))
	require.NoError(t, s.Add("fail", "0 0 1 1 *", func(ctx context.Context) error {
		return errors.New("boom")
	}))

	require.NoError(t, s.RunNow("count"))
	assert.Equal(t, int32(1), runs.Load())
	assert.EqualError(t, s.RunNow("fail"), "boom")
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s, err := New("UTC", time.Second)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Add("slow", "0 0 1 1 *", func(ctx context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}))

	done := make(chan error)
	go func() { done <- s.RunNow("slow") }()
	<-started

	require.NoError(t, s.RunNow("slow"))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New("UTC", time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Add("yearly", "0 0 1 1 *", func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.True(t, s.IsRunning())
	next := s.NextRun("yearly")
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))

	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, 2*time.Second, 10*time.Millisecond)
	assert.Nil(t, s.NextRun("yearly"))
}

func TestRegisterCirculationJobs(t *testing.T) {
	cfg := config.Schedules{FineSweep: "15 0 * * *", Reconcile: "0 3 * * 0", AuditCleanup: "30 2 * * *"}

	t.Run("inline without a queue", func(t *testing.T) {
		s, err := New("UTC", time.Second)
		require.NoError(t, err)
		sweeper := &countingSweeper{}

		require.NoError(t, RegisterCirculationJobs(s, cfg, nil, Jobs{Sweeper: sweeper, Reconciler: noopReconciler{}}))
		require.NoError(t, s.RunNow(JobFineSweep))
		require.NoError(t, s.RunNow(JobReconcile))
		assert.Equal(t, int32(1), sweeper.calls.Load())
		assert.Error(t, s.RunNow(JobAuditCleanup), "cleanup is not registered without a cleaner")
	})

	t.Run("enqueues with a queue", func(t *testing.T) {
		s, err := New("UTC", time.Second)
		require.NoError(t, err)
		queue := &memoryQueue{}
		sweeper := &countingSweeper{}

		require.NoError(t, RegisterCirculationJobs(s, cfg, queue, Jobs{Sweeper: sweeper, Reconciler: noopReconciler{}}))
		require.NoError(t, s.RunNow(JobFineSweep))
		require.NoError(t, s.RunNow(JobReconcile))

		assert.Equal(t, []string{"accrue_overdue_fines", "reconcile_inventory"}, queue.names)
		assert.Equal(t, int32(0), sweeper.calls.Load())
	})
}
