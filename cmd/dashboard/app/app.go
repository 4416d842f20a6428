package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/roman-kulish/flight-instruments/internal/channel"
	"github.com/roman-kulish/flight-instruments/internal/dashboard"
	"github.com/roman-kulish/flight-instruments/internal/geo"
	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/media"
	"github.com/roman-kulish/flight-instruments/internal/params"
	"github.com/roman-kulish/flight-instruments/internal/sim"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
	"github.com/roman-kulish/flight-instruments/internal/tui"
	"github.com/roman-kulish/flight-instruments/internal/web"
)

// link is a telemetry transport together with its lifecycle
type link struct {
	channel.Transport

	// stopped receives the reason the link went down, may be nil
	stopped <-chan error
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l, err := createLink(ctx, &config.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("failed to create telemetry link: %w", err)
	}
	defer l.Close()

	store, err := createParams(&config.Params)
	if err != nil {
		return fmt.Errorf("failed to create parameter store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// the terminal's come-here key uses the last browser report, then the
	// configured position; the browser always posts its own position
	reported := geo.NewReported(defaultPositionAge)
	locator := geo.Chain{reported}
	var fallback telemetry.Locator
	if g := config.Geolocation; g != nil {
		reported = geo.NewReported(g.MaxAge.Duration())
		fallback = geo.Static{Position: telemetry.Position{Latitude: g.Latitude, Longitude: g.Longitude}}
		locator = geo.Chain{reported, fallback}
	}

	options := []func(*dashboard.Dashboard){
		dashboard.WithLogger(logger),
		dashboard.WithMetrics(dashboard.NewMetrics(reg)),
		dashboard.WithLocator(locator),
		dashboard.WithChart(config.Chart.RedrawInterval.Duration(), config.Chart.Horizon.Duration()),
		dashboard.WithQueue(config.Telemetry.QueueSize, config.Telemetry.OnQueueFull),
	}
	if store != nil {
		options = append(options, dashboard.WithParams(store))
	}
	if config.Telemetry.StrictDecoding {
		options = append(options, dashboard.WithStrictDecoding())
	}
	if config.Raster.Enabled {
		raster, err := instrument.NewRaster(config.Raster.Size)
		if err != nil {
			return fmt.Errorf("failed to create raster instruments: %w", err)
		}
		options = append(options, dashboard.WithRaster(raster))
	}

	d, err := dashboard.New(l, options...)
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	spawn := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errs <- fmt.Errorf("%s: %w", name, err)
				cancel() // signal to other goroutines about fatal
			}
		}()
	}

	spawn("dashboard", d.Run)

	if config.Telemetry.Transport == TransportMemory && config.Simulator.Enabled {
		simulator := sim.New(l, sim.WithLogger(logger), sim.WithRate(config.Simulator.Rate.Duration()))
		spawn("simulator", simulator.Run)
	}

	if config.HTTP.Addr != "" {
		serverOpts := []func(*web.Server){
			web.WithLogger(logger),
			web.WithAllowedOrigins(config.HTTP.AllowedOrigins...),
			web.WithGatherer(reg),
			web.WithReporter(reported),
			web.WithFallback(fallback),
			web.WithChartSize(config.Chart.Width, config.Chart.Height),
			web.WithCamera(createCamera(&config.Media, d)),
		}
		if config.Media.Path != "" {
			library, err := media.NewLibrary(config.Media.Path, media.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("failed to create media library: %w", err)
			}
			serverOpts = append(serverOpts, web.WithMedia(library))
		}

		server := web.New(d, serverOpts...)
		spawn("http", func(ctx context.Context) error {
			return server.ListenAndServe(ctx, config.HTTP.Addr)
		})
	}

	if config.Settings.Terminal {
		surface := tui.New(d.Binder(), d, tui.WithLogger(logger))
		spawn("terminal", func(ctx context.Context) error {
			defer cancel() // quitting the terminal stops the dashboard
			return surface.Run(ctx)
		})
	}

	spawn("stats", func(ctx context.Context) error {
		logStats(ctx, d, config.Settings.StatsInterval.Duration(), logger)
		return nil
	})

	if l.stopped != nil {
		spawn("link", func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-l.stopped:
				if ok && err != nil {
					return err
				}
				logger.Warn("telemetry link closed")
				return nil
			}
		})
	}

	wg.Wait()
	close(errs)

	var runErrs []error
	for err := range errs {
		runErrs = append(runErrs, err)
	}
	return errors.Join(runErrs...)
}

func createLink(ctx context.Context, config *TelemetryConfig, logger *slog.Logger) (*link, error) {
	streamOpts := []func(*channel.StreamTransport){channel.WithStreamLogger(logger)}

	switch config.Transport {
	case TransportMemory:
		t := channel.NewMemoryTransport()
		return &link{Transport: t}, nil

	case TransportSSE:
		t, err := channel.NewSSETransport(config.URL, channel.WithSSELogger(logger))
		if err != nil {
			return nil, err
		}
		return &link{Transport: t}, nil

	case TransportSerial:
		t, stopped, err := channel.OpenSerial(config.SerialPort, config.BaudRate, streamOpts...)
		if err != nil {
			return nil, err
		}
		return &link{Transport: t, stopped: stopped}, nil

	case TransportCommand:
		t, stopped, err := channel.StartCommand(ctx, config.Command, config.Args, streamOpts...)
		if err != nil {
			return nil, err
		}
		return &link{Transport: t, stopped: stopped}, nil

	default:
		return nil, fmt.Errorf("unknown transport '%s'", config.Transport)
	}
}

func createCamera(config *MediaConfig, d *dashboard.Dashboard) media.Source {
	if config.SnapshotURL != "" {
		return media.HTTPSource{URL: config.SnapshotURL, Client: &http.Client{Timeout: snapshotTimeout}}
	}
	return d
}

func createParams(config *ParamsConfig) (params.Store, error) {
	switch config.Backend {
	case ParamsNone:
		return nil, nil

	case ParamsSqlite:
		return params.NewSqliteStore(config.Path), nil

	case ParamsBunt:
		store, err := params.OpenBuntStore(config.Path)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown parameter store '%s'", config.Backend)
	}
}
