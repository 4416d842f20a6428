package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5

	maxLineSize = 1 << 20
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from the link
	ErrBrokenPipe = errors.New("broken pipe")
)

// Envelope is a single line of the stream protocol
type Envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// WithStreamLogger sets the logger for the stream transport
func WithStreamLogger(logger *slog.Logger) func(s *StreamTransport) {
	return func(s *StreamTransport) {
		s.logger = logger.With(slog.String("link", s.name))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *StreamTransport) {
	return func(s *StreamTransport) {
		s.parseErrorsThreshold = threshold
	}
}

// StreamTransport speaks newline-delimited JSON envelopes over a byte stream,
// such as a serial port or the standard streams of a bridge process.
type StreamTransport struct {
	name string
	hub  *MemoryTransport

	w       io.Writer
	writeMu sync.Mutex

	closer    io.Closer
	closeOnce sync.Once
	closeErr  error

	parseErrorsThreshold uint8
	logger               *slog.Logger
}

func newStreamTransport(name string, w io.Writer, closer io.Closer, options ...func(s *StreamTransport)) *StreamTransport {
	s := StreamTransport{
		name:                 name,
		hub:                  NewMemoryTransport(),
		w:                    w,
		closer:               closer,
		parseErrorsThreshold: ParseErrorsThreshold,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// NewStreamTransport starts reading envelopes from rw. The returned channel
// receives the reason the link stopped, if any, and is then closed.
func NewStreamTransport(name string, rw io.ReadWriteCloser, options ...func(s *StreamTransport)) (*StreamTransport, <-chan error) {
	s := newStreamTransport(name, rw, rw, options...)

	stopped := make(chan error, 1)
	go func() {
		defer close(stopped)

		done := make(chan error, 1)
		s.handleLines(rw, done)
		if err := <-done; err != nil {
			s.logger.Error(err.Error())
			stopped <- err
		}
		s.logger.Info("link closed")
	}()

	return s, stopped
}

func (s *StreamTransport) Subscribe(topic string, fn func(payload []byte)) (func(), error) {
	return s.hub.Subscribe(topic, fn)
}

func (s *StreamTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(Envelope{Topic: topic, Data: payload})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	line = append(line, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err = s.w.Write(line); err != nil {
		return fmt.Errorf("%w: writing envelope: %w", ErrBrokenPipe, err)
	}
	return nil
}

func (s *StreamTransport) Close() error {
	s.closeOnce.Do(func() {
		_ = s.hub.Close()
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}

// handleLines reads envelopes line by line and fans them out to subscribers
func (s *StreamTransport) handleLines(r io.Reader, done chan<- error) {
	var parseErrors uint8

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := s.dispatchLine(line); err != nil {
			parseErrors++
			s.logger.Warn(fmt.Sprintf("error parsing envelope: %s", err.Error()), slog.String("line", line))

			if parseErrors >= s.parseErrorsThreshold {
				done <- ErrTooManyParseErrors
				return
			}

			continue
		}

		parseErrors = 0 // reset counter
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading link: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

func (s *StreamTransport) dispatchLine(line string) error {
	var env Envelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return err
	}
	if env.Topic == "" {
		return fmt.Errorf("envelope without topic")
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("envelope without data")
	}

	return s.hub.Publish(context.Background(), env.Topic, env.Data)
}
