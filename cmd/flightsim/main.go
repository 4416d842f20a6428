// Command flightsim runs the vehicle simulator on its standard streams using
// the newline-delimited envelope protocol, for use with the command transport.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/channel"
	"github.com/roman-kulish/flight-instruments/internal/sim"
)

// stdio joins the standard streams into a single link
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error {
	return os.Stdin.Close()
}

func main() {
	// stdout carries telemetry, logs go to stderr
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var rate time.Duration
	flag.DurationVar(&rate, "rate", sim.DefaultRate, "Interval between attitude and IMU samples")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	link, stopped := channel.NewStreamTransport("stdio", stdio{Reader: os.Stdin, Writer: os.Stdout}, channel.WithStreamLogger(logger))
	defer link.Close()

	go func() {
		if err := <-stopped; err != nil {
			logger.Error(err.Error())
		}
		cancel()
	}()

	if err := sim.New(link, sim.WithLogger(logger), sim.WithRate(rate)).Run(ctx); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
