// Package capture drives clipboard capture: a cooperative loop and the unit
// of work it repeats, which turns clipboard changes into history entries.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrCaptureFailure wraps an error returned by the loop's action. It is
	// fatal to the loop; restarting is up to the caller.
	ErrCaptureFailure = errors.New("capture failed")
	// ErrDoubleStart is returned by Start on a loop that is already running.
	ErrDoubleStart = errors.New("capture loop already running")
)

// State is the lifecycle state of a Loop.
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loop repeatedly runs an action on the calling goroutine. Stop and context
// cancellation are observed only between iterations; an in-flight action is
// never interrupted by Stop.
type Loop struct {
	mu     sync.Mutex
	state  State
	stop   chan struct{}
	active bool // a Start call has not yet returned
}

// State reports the loop's current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start runs action until ctx is done or Stop is called, then returns nil.
// If action fails, the loop stops and Start returns the error wrapped in
// ErrCaptureFailure. A stopped loop may be started again once the previous
// Start has returned.
func (l *Loop) Start(ctx context.Context, action func(context.Context) error) error {
	l.mu.Lock()
	if l.state == Running || l.active {
		l.mu.Unlock()
		return ErrDoubleStart
	}
	l.state = Running
	l.active = true
	stop := make(chan struct{})
	l.stop = stop
	l.mu.Unlock()

	defer func() {
		l.Stop()
		l.mu.Lock()
		l.active = false
		l.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		default:
		}
		if err := action(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			slog.Error("capture loop stopped", "err", err)
			return fmt.Errorf("%w: %w", ErrCaptureFailure, err)
		}
	}
}

// Stop asks a running loop to return after its current iteration. It is
// safe to call at any time and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Running {
		return
	}
	l.state = Stopped
	close(l.stop)
}
