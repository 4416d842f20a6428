package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// StartCommand runs a telemetry bridge program and speaks the stream protocol
// over its standard input and output. Lines written to standard error are
// logged as warnings. The returned channel receives the reason the bridge
// stopped, if any, and is then closed.
func StartCommand(ctx context.Context, bin string, args []string, options ...func(s *StreamTransport)) (*StreamTransport, <-chan error, error) {
	binPath, err := exec.LookPath(bin)
	if err != nil {
		return nil, nil, fmt.Errorf("finding bridge `%s`: %w", bin, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, binPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("error creating stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("error starting command: %w", err)
	}

	s := newStreamTransport(bin, stdin, closerFunc(func() error {
		cancel()
		return stdin.Close()
	}), options...)

	stopped := make(chan error, 1)
	go func() {
		defer close(stopped)

		s.logger.Info("bridge started", slog.Int("pid", cmd.Process.Pid))

		done := make(chan error, 3) // expects three results from three goroutines

		go s.handleLines(stdout, done)
		go s.handleStderr(stderr, done)
		go handleCmdWait(cmd, done)

		var errs []error
		for i := 0; i < cap(done); i++ {
			if err := <-done; err != nil {
				cancel() // cancel context on error
				s.logger.Error(err.Error())

				errs = append(errs, err)
			}
		}

		s.logger.Info("bridge stopped")

		if len(errs) > 0 {
			stopped <- errors.Join(errs...)
		}
	}()

	return s, stopped, nil
}

// handleStderr reads from stderr and logs it
func (s *StreamTransport) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s.logger.Warn(fmt.Sprintf("%s >> %s", s.name, line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}

// handleCmdWait waits for the command to exit and sends the error to the error channel
func handleCmdWait(cmd *exec.Cmd, done chan<- error) {
	if err := cmd.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		done <- fmt.Errorf("command exited with error: %w", err)
		return
	}

	done <- nil
}
