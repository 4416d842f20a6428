package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	// PolicyBlock makes Dispatch wait for room in the queue
	PolicyBlock Policy = "block"

	// PolicyDrop makes Dispatch discard the event when the queue is full
	PolicyDrop Policy = "drop"

	defaultQueueSize = 256
)

// ErrStopped is returned by Call once the loop has exited
var ErrStopped = errors.New("loop stopped")

// Policy decides what happens to an event that does not fit into the queue
type Policy string

func (p Policy) Validate() error {
	switch p {
	case PolicyBlock, PolicyDrop:
		return nil
	default:
		return fmt.Errorf("unknown queue policy '%s'", p)
	}
}

// WithLogger sets the logger for the loop
func WithLogger(logger *slog.Logger) func(l *Loop) {
	return func(l *Loop) {
		l.logger = logger.With(slog.String("component", "dispatch"))
	}
}

// WithPolicy sets the queue overflow policy
func WithPolicy(p Policy) func(l *Loop) {
	return func(l *Loop) {
		l.policy = p
	}
}

// WithDropHook registers fn to be called every time an event is dropped
func WithDropHook(fn func()) func(l *Loop) {
	return func(l *Loop) {
		l.onDrop = fn
	}
}

// Loop runs posted events one at a time, in the order they were posted, on a
// single goroutine. Everything that mutates instrument state goes through it,
// so no handler ever runs concurrently with another.
type Loop struct {
	queue   chan func()
	policy  Policy
	onDrop  func()
	dropped atomic.Uint64
	running atomic.Bool

	stopped  chan struct{}
	stopOnce sync.Once

	logger *slog.Logger
}

// NewLoop creates a loop with a queue of the given size
func NewLoop(size int, options ...func(l *Loop)) *Loop {
	if size <= 0 {
		size = defaultQueueSize
	}

	l := Loop{
		queue:   make(chan func(), size),
		policy:  PolicyBlock,
		stopped: make(chan struct{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// Run executes events until the context is cancelled
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("loop is already running")
	}
	defer l.stopOnce.Do(func() { close(l.stopped) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-l.queue:
			l.execute(fn)
		}
	}
}

// Dispatch posts fn to the loop. It reports false if the event was dropped,
// either by the overflow policy or because the loop has stopped.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}

	select {
	case <-l.stopped:
		return false
	default:
	}

	if l.policy == PolicyDrop {
		select {
		case l.queue <- fn:
			return true
		default:
			l.drop()
			return false
		}
	}

	select {
	case l.queue <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Call posts fn and waits until it has been executed
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	ok := l.Dispatch(func() {
		defer close(done)
		fn()
	})
	if !ok {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of events discarded so far
func (l *Loop) Dropped() uint64 {
	return l.dropped.Load()
}

// Len returns the number of events waiting in the queue
func (l *Loop) Len() int {
	return len(l.queue)
}

func (l *Loop) drop() {
	n := l.dropped.Add(1)
	if l.onDrop != nil {
		l.onDrop()
	}
	l.logger.Debug("event dropped, queue full", slog.Uint64("dropped", n))
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error(fmt.Sprintf("event handler panicked: %v", r))
		}
	}()
	fn()
}
