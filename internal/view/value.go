package view

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const defaultSendTimeout = 200 * time.Millisecond

type subscriber[T any] struct {
	ch   chan T
	name string
}

// WithLogger sets the logger for the value
func WithLogger[T any](logger *slog.Logger) func(v *Value[T]) {
	return func(v *Value[T]) {
		v.logger = logger
	}
}

// WithSendTimeout bounds how long Set waits for a single observer
func WithSendTimeout[T any](d time.Duration) func(v *Value[T]) {
	return func(v *Value[T]) {
		v.sendTimeout = d
	}
}

// Value is an observable state container. Set is the only way to change it;
// every change is forwarded to the subscribed channels in order. An observer
// that does not receive within the send timeout misses that change.
type Value[T any] struct {
	name string

	mu      sync.RWMutex
	current T
	version uint64

	subsMu      sync.Mutex
	subscribers []subscriber[T]
	sendTimeout time.Duration
	timeouts    uint64

	logger *slog.Logger
}

// NewValue creates a container holding initial
func NewValue[T any](name string, initial T, options ...func(v *Value[T])) *Value[T] {
	v := Value[T]{
		name:        name,
		current:     initial,
		sendTimeout: defaultSendTimeout,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&v)
	}
	v.logger = v.logger.With(slog.String("value", name))

	return &v
}

func (v *Value[T]) Name() string {
	return v.name
}

// Get returns the current value
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Version is incremented on every Set
func (v *Value[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Set replaces the value and notifies observers
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	v.current = x
	v.version++
	v.mu.Unlock()

	v.subsMu.Lock()
	defer v.subsMu.Unlock()

	for _, sub := range v.subscribers {
		select {
		case sub.ch <- x:
			continue
		default:
		}

		timer := time.NewTimer(v.sendTimeout)
		select {
		case sub.ch <- x:
		case <-timer.C:
			v.timeouts++
			v.logger.Warn(fmt.Sprintf("observer %s timed out", sub.name))
		}
		timer.Stop()
	}
}

// Subscribe registers ch to receive every future value
func (v *Value[T]) Subscribe(name string, ch chan T) {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	v.subscribers = append(v.subscribers, subscriber[T]{ch: ch, name: name})
}

// Unsubscribe removes ch. It reports false if ch was not subscribed.
func (v *Value[T]) Unsubscribe(ch chan T) bool {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()

	i := slices.IndexFunc(v.subscribers, func(sub subscriber[T]) bool { return sub.ch == ch })
	if i == -1 {
		return false
	}
	v.subscribers = slices.Delete(v.subscribers, i, i+1)
	return true
}

// Timeouts returns the number of changes observers missed
func (v *Value[T]) Timeouts() uint64 {
	v.subsMu.Lock()
	defer v.subsMu.Unlock()
	return v.timeouts
}
