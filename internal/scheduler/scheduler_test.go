package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s, err := New(Options{Interval: 10 * time.Millisecond, RunOnStart: true}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
}

func TestRunHonoursStartupDelayCancellation(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, StartupDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextTickAlignment(t *testing.T) {
	s, err := New(Options{Interval: 15 * time.Minute, AlignToInterval: true}, zerolog.Nop())
	require.NoError(t, err)

	at := time.Date(2025, 6, 15, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 15, 10, 15, 0, 0, time.UTC), s.nextTick(at))
	assert.Equal(t, time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC), s.nextTick(time.Date(2025, 6, 15, 10, 15, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC), s.tickStart(time.Date(2025, 6, 15, 10, 0, 0, 5, time.UTC)))

	free, err := New(Options{Interval: time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, at.Add(time.Minute), free.nextTick(at))
}

func TestCronRunnerAdd(t *testing.T) {
	r := NewCronRunner(context.Background(), zerolog.Nop())
	require.NoError(t, r.Add("sweep", "0 2 * * *", func(context.Context) {}))
	require.NoError(t, r.Add("disabled", "", func(context.Context) {}))
	assert.Error(t, r.Add("bad", "not a spec", func(context.Context) {}))
	assert.Equal(t, 1, r.Entries())

	r.Start()
	r.Stop()
}
