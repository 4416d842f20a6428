package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

const defaultHTTPTimeout = 5 * time.Second

// WithSSELogger sets the logger for the SSE transport
func WithSSELogger(logger *slog.Logger) func(s *SSETransport) {
	return func(s *SSETransport) {
		s.logger = logger.With(slog.String("bridge", s.base))
	}
}

// WithHTTPClient sets the HTTP client used for publishing
func WithHTTPClient(client *http.Client) func(s *SSETransport) {
	return func(s *SSETransport) {
		s.client = client
	}
}

// SSETransport talks to a vehicle bridge exposing one server-sent-event
// stream per topic on <base>/events and accepting publishes on
// <base>/topics/<topic>. Broken streams are not reconnected.
type SSETransport struct {
	base   string
	client *http.Client
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[uint64]context.CancelFunc
	nextID  uint64
	closed  bool
	wg      sync.WaitGroup
}

// NewSSETransport creates a transport for the bridge at base
func NewSSETransport(base string, options ...func(s *SSETransport)) (*SSETransport, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing bridge url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported bridge url scheme %q", u.Scheme)
	}

	s := SSETransport{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cancels: make(map[uint64]context.CancelFunc),
	}

	for _, option := range options {
		option(&s)
	}

	return &s, nil
}

func (s *SSETransport) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.nextID++
	id := s.nextID
	s.cancels[id] = cancel

	client := sse.NewClient(s.base + "/events")
	client.ReconnectStrategy = &backoff.StopBackOff{}
	client.OnDisconnect(func(*sse.Client) {
		s.logger.Debug("stream disconnected", slog.String("topic", topic))
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := client.SubscribeWithContext(ctx, topic, func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}
			fn(msg.Data)
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Debug(fmt.Sprintf("stream unavailable: %s", err.Error()), slog.String("topic", topic))
		}
	}()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if c, ok := s.cancels[id]; ok {
			c()
			delete(s.cancels, id)
		}
	}, nil
}

func (s *SSETransport) Publish(ctx context.Context, topic string, payload []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	endpoint := s.base + "/topics/" + url.PathEscape(topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("publishing to %s: unexpected status %s", topic, resp.Status)
	}
	return nil
}

func (s *SSETransport) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, cancel := range s.cancels {
		cancel()
		delete(s.cancels, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
