package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

const (
	defaultPublishTimeout = 2 * time.Second
	defaultOutboxSize     = 16
)

// ErrClosed is returned when using a transport or subscription after Close
var ErrClosed = errors.New("channel closed")

// Transport moves raw JSON payloads between named topics and this process.
// Implementations must invoke a topic's callbacks sequentially, in arrival
// order, and must not hold internal locks while doing so.
type Transport interface {
	Subscribe(topic string, fn func(payload []byte)) (cancel func(), err error)
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Dispatcher serialises handler execution onto a single goroutine
type Dispatcher interface {
	Dispatch(fn func()) bool
}

type options struct {
	strict         bool
	publishTimeout time.Duration
	logger         *slog.Logger
	onInvalid      func(topic string)
}

// Option configures a Topic
type Option func(o *options)

// WithLogger sets the logger for the topic
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStrictDecoding makes the first malformed payload terminate the
// subscription instead of being skipped
func WithStrictDecoding() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithPublishTimeout bounds how long a single Set may take on the transport
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) {
		o.publishTimeout = d
	}
}

// WithInvalidHook registers fn to be called for every payload that fails to decode
func WithInvalidHook(fn func(topic string)) Option {
	return func(o *options) {
		o.onInvalid = fn
	}
}

// Topic is a typed view over a single named channel of a Transport
type Topic[T telemetry.Snapshot] struct {
	name       string
	transport  Transport
	dispatcher Dispatcher
	opts       options

	mu         sync.Mutex
	outbox     chan []byte
	outboxOnce sync.Once
	closed     bool
	logger     *slog.Logger
}

// NewTopic binds a topic name of the transport to the snapshot type T
func NewTopic[T telemetry.Snapshot](name string, transport Transport, dispatcher Dispatcher, opts ...Option) *Topic[T] {
	o := options{
		publishTimeout: defaultPublishTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Topic[T]{
		name:       name,
		transport:  transport,
		dispatcher: dispatcher,
		opts:       o,
		outbox:     make(chan []byte, defaultOutboxSize),
		logger:     o.logger.With(slog.String("topic", name)),
	}
}

// Name returns the topic name
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers handler to receive every snapshot published on the
// topic. The handler always runs on the dispatcher, in arrival order. If the
// transport never delivers anything the handler is simply never invoked.
func (t *Topic[T]) Subscribe(handler func(T)) (*Subscription, error) {
	sub := newSubscription(t.name)

	cancel, err := t.transport.Subscribe(t.name, func(payload []byte) {
		if !sub.Active() {
			return
		}

		v, err := telemetry.Decode[T](payload)
		if err != nil {
			if t.opts.onInvalid != nil {
				t.opts.onInvalid(t.name)
			}
			if t.opts.strict {
				t.logger.Error(fmt.Sprintf("closing subscription on malformed payload: %s", err.Error()))
				sub.fail(err)
				return
			}
			t.logger.Warn(fmt.Sprintf("skipping malformed payload: %s", err.Error()))
			return
		}

		if !t.dispatcher.Dispatch(func() {
			if sub.Active() {
				handler(v)
			}
		}) {
			t.logger.Debug("snapshot not dispatched")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", t.name, err)
	}

	sub.setCancel(cancel)
	return sub, nil
}

// Set publishes value on the topic. Delivery is fire-and-forget: transport
// failures are logged and never reported to the caller. Values set from the
// same Topic are published in call order.
func (t *Topic[T]) Set(value T) {
	payload, err := json.Marshal(value)
	if err != nil {
		t.logger.Debug(fmt.Sprintf("encoding payload: %s", err.Error()))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	t.outboxOnce.Do(func() { go t.drain() })

	select {
	case t.outbox <- payload:
	default:
		t.logger.Debug("outbox full, payload discarded")
	}
}

// Close stops the publishing goroutine. Pending payloads are still sent.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.outbox)
	}
}

func (t *Topic[T]) drain() {
	for payload := range t.outbox {
		ctx, cancel := context.WithTimeout(context.Background(), t.opts.publishTimeout)
		if err := t.transport.Publish(ctx, t.name, payload); err != nil {
			t.logger.Debug(fmt.Sprintf("publishing payload: %s", err.Error()))
		}
		cancel()
	}
}

// Subscription is the disposable handle returned by Topic.Subscribe
type Subscription struct {
	ID    uuid.UUID
	Topic string

	mu     sync.Mutex
	cancel func()
	closed bool
	err    error
}

func newSubscription(topic string) *Subscription {
	return &Subscription{ID: uuid.New(), Topic: topic}
}

// Active reports whether the subscription still delivers snapshots
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Err returns the error that terminated the subscription, if any
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery. It is safe to call Close multiple times.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (s *Subscription) setCancel(cancel func()) {
	s.mu.Lock()
	if !s.closed {
		s.cancel = cancel
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// failed before the transport returned
	if cancel != nil {
		cancel()
	}
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
