package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New("not a cron", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestNew_ManualOnly(t *testing.T) {
	var calls atomic.Int32
	s, err := New("", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	s.Start(context.Background())
	defer func() { _ = s.Stop(context.Background()) }()

	assert.True(t, s.Next().IsZero())
	require.NoError(t, s.RunNow(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunNow(t *testing.T) {
	var calls atomic.Int32
	s, err := New("0 2 * * *", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, s.RunNow(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.Running())
}

func TestRunNow_ReturnsJobError(t *testing.T) {
	boom := errors.New("finalize failed")
	s, err := New("0 2 * * *", func(context.Context) error { return boom })
	require.NoError(t, err)

	assert.ErrorIs(t, s.RunNow(context.Background()), boom)
	assert.False(t, s.Running(), "guard is released after a failed cycle")
}

func TestRunNow_RejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s, err := New("0 2 * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan error)
	go func() { done <- s.RunNow(context.Background()) }()
	<-started

	assert.True(t, s.Running())
	assert.ErrorIs(t, s.RunNow(context.Background()), ErrAlreadyRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestTick_SkipsWhileRunning(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	s, err := New("0 2 * * *", func(context.Context) error {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	})
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	go s.RunNow(context.Background())
	<-started

	s.tick()
	assert.Equal(t, int32(1), calls.Load(), "tick during a running cycle is skipped")

	close(release)
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 5*time.Millisecond)

	s.tick()
	assert.Equal(t, int32(2), calls.Load())
}

func TestTick_BeforeStartIsIgnored(t *testing.T) {
	var calls atomic.Int32
	s, err := New("0 2 * * *", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	s.tick()
	assert.Zero(t, calls.Load())
}

func TestSchedule_Fires(t *testing.T) {
	var calls atomic.Int32
	s, err := New("@every 1s", func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)

	s.Start(context.Background())
	assert.False(t, s.Next().IsZero())
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStop_CancelsRunningCycle(t *testing.T) {
	started := make(chan struct{})
	s, err := New("0 2 * * *", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	s.Start(context.Background())

	go s.tick()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Running())
}
