package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fireflies-dealcloud-sync/internal/common/logger"
)

type fakeTrigger struct {
	runs  atomic.Int32
	busy  atomic.Bool
	calls atomic.Int32
}

func (f *fakeTrigger) TryRun(trigger string, limit int) bool {
	f.calls.Add(1)
	if f.busy.Load() {
		return false
	}
	f.runs.Add(1)
	return true
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerFiresOnTicks(t *testing.T) {
	trigger := &fakeTrigger{}
	s := New(10*time.Millisecond, trigger, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	waitFor(t, time.Second, func() bool { return trigger.runs.Load() >= 2 })
}

func TestSchedulerSkipsWhenRunInFlight(t *testing.T) {
	trigger := &fakeTrigger{}
	trigger.busy.Store(true)
	s := New(10*time.Millisecond, trigger, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	waitFor(t, time.Second, func() bool { return trigger.calls.Load() >= 2 })
	assert.Equal(t, int32(0), trigger.runs.Load())
}

func TestSchedulerDisabledIntervalNeverFires(t *testing.T) {
	trigger := &fakeTrigger{}
	s := New(0, trigger, logger.NewTestLogger(t))

	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for zero interval")
	}
	assert.Equal(t, int32(0), trigger.calls.Load())
}

func TestSchedulerEnableDisable(t *testing.T) {
	trigger := &fakeTrigger{}
	s := New(10*time.Millisecond, trigger, logger.NewTestLogger(t))

	s.Disable()
	assert.False(t, s.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	waitFor(t, time.Second, func() bool { return s.ticks.Load() >= 2 })
	assert.Equal(t, int32(0), trigger.calls.Load())

	s.Enable()
	waitFor(t, time.Second, func() bool { return trigger.runs.Load() >= 1 })
}
