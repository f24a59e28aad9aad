package capture

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopStateTransitions(t *testing.T) {
	var l Loop
	assert.Equal(t, Idle, l.State())

	started := make(chan struct{})
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- l.Start(context.Background(), func(context.Context) error {
			if calls.Add(1) == 1 {
				close(started)
			}
			time.Sleep(time.Millisecond)
			return nil
		})
	}()
	<-started
	assert.Equal(t, Running, l.State())

	l.Stop()
	l.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, Stopped, l.State())
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestLoopDoubleStart(t *testing.T) {
	var l Loop
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- l.Start(context.Background(), func(context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		})
	}()
	<-started
	assert.ErrorIs(t, l.Start(context.Background(), func(context.Context) error { return nil }), ErrDoubleStart)

	// Stopped but still finishing its iteration: still refused.
	l.Stop()
	assert.ErrorIs(t, l.Start(context.Background(), func(context.Context) error { return nil }), ErrDoubleStart)

	close(release)
	require.NoError(t, <-done)
}

func TestLoopActionErrorIsFatal(t *testing.T) {
	var l Loop
	boom := errors.New("clipboard locked")
	var calls int
	err := l.Start(context.Background(), func(context.Context) error {
		calls++
		if calls == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrCaptureFailure)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, Stopped, l.State())

	// Restart is an explicit decision and allowed.
	ctx, cancel := context.WithCancel(context.Background())
	err = l.Start(ctx, func(context.Context) error {
		cancel()
		return nil
	})
	assert.NoError(t, err)
}

func TestLoopContextCancel(t *testing.T) {
	var l Loop
	ctx, cancel := context.WithCancel(context.Background())
	err := l.Start(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	assert.NoError(t, err)
	assert.Equal(t, Stopped, l.State())
}

func TestLoopNeverOverlaps(t *testing.T) {
	var l Loop
	var running, overlap atomic.Int32
	var calls int
	err := l.Start(context.Background(), func(context.Context) error {
		if running.Add(1) > 1 {
			overlap.Add(1)
		}
		defer running.Add(-1)
		calls++
		if calls == 50 {
			l.Stop()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, overlap.Load())
	assert.Equal(t, 50, calls)
}
