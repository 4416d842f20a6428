package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"

	"github.com/roman-kulish/flight-instruments/internal/dashboard"
	"github.com/roman-kulish/flight-instruments/internal/geo"
	"github.com/roman-kulish/flight-instruments/internal/media"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
	"github.com/roman-kulish/flight-instruments/internal/view"
)

//go:embed index.html
var templates embed.FS

const (
	StreamAttitude = "attitude"
	StreamStatus   = "status"
	StreamIMU      = "imu"
	StreamChart    = "chart"

	defaultChartWidth  = 640
	defaultChartHeight = 240

	shutdownTimeout = 5 * time.Second
)

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) func(s *Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins sets the origins allowed by CORS
func WithAllowedOrigins(origins ...string) func(s *Server) {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithGatherer exposes the metrics of g on /metrics
func WithGatherer(g prometheus.Gatherer) func(s *Server) {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithReporter stores positions reported by the browser into r
func WithReporter(r *geo.Reported) func(s *Server) {
	return func(s *Server) {
		s.reporter = r
	}
}

// WithFallback sets the locator asked when a come-here request carries no
// position, which is what browsers without a geolocation API send
func WithFallback(l telemetry.Locator) func(s *Server) {
	return func(s *Server) {
		s.fallback = l
	}
}

// WithMedia serves the picture library and lists it on /api/media
func WithMedia(l *media.Library) func(s *Server) {
	return func(s *Server) {
		s.library = l
	}
}

// WithCamera sets the source of camera snapshots
func WithCamera(c media.Source) func(s *Server) {
	return func(s *Server) {
		s.camera = c
	}
}

// WithChartSize sets the size of the rendered strip chart
func WithChartSize(width, height int) func(s *Server) {
	return func(s *Server) {
		s.chartWidth = width
		s.chartHeight = height
	}
}

// Server is the operator facing HTTP surface of the dashboard
type Server struct {
	dashboard *dashboard.Dashboard
	events    *sse.Server
	mux       *http.ServeMux
	index     *template.Template

	allowedOrigins []string
	gatherer       prometheus.Gatherer
	reporter       *geo.Reported
	fallback       telemetry.Locator
	library        *media.Library
	camera         media.Source
	chartWidth     int
	chartHeight    int

	logger *slog.Logger
}

// New creates the HTTP surface for d
func New(d *dashboard.Dashboard, options ...func(s *Server)) *Server {
	s := Server{
		dashboard:   d,
		events:      sse.New(),
		mux:         http.NewServeMux(),
		chartWidth:  defaultChartWidth,
		chartHeight: defaultChartHeight,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.events.AutoReplay = false
	for _, stream := range []string{StreamAttitude, StreamStatus, StreamIMU, StreamChart} {
		s.events.CreateStream(stream)
	}

	s.index = template.Must(template.New("index").Funcs(sprig.FuncMap()).ParseFS(templates, "*.html"))
	s.routes()

	return &s
}

// Handler returns the root handler with CORS applied
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
	}).Handler(s.mux)
}

// Forward pushes binder changes to the event streams until ctx is done
func (s *Server) Forward(ctx context.Context) {
	b := s.dashboard.Binder()

	done := make(chan struct{}, 4)
	go func() { forward(ctx, s, StreamAttitude, b.Attitude); done <- struct{}{} }()
	go func() { forward(ctx, s, StreamStatus, b.Status); done <- struct{}{} }()
	go func() { forward(ctx, s, StreamIMU, b.Motion); done <- struct{}{} }()
	go func() { forward(ctx, s, StreamChart, b.Chart); done <- struct{}{} }()

	for range 4 {
		<-done
	}
}

func forward[T any](ctx context.Context, s *Server, stream string, v *view.Value[T]) {
	ch := make(chan T, 16)
	v.Subscribe("sse "+stream, ch)
	defer v.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case x := <-ch:
			data, err := json.Marshal(x)
			if err != nil {
				s.logger.Error(fmt.Sprintf("encoding %s event: %s", stream, err.Error()))
				continue
			}
			s.events.TryPublish(stream, &sse.Event{Data: data})
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fwdCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Forward(fwdCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)

	case <-ctx.Done():
	}

	s.events.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /events", s.events.ServeHTTP)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/status/arm", s.handleArm)
	s.mux.HandleFunc("POST /api/status/disarm", s.handleDisarm)
	s.mux.HandleFunc("POST /api/waypoints/come-here", s.handleComeHere)
	s.mux.HandleFunc("POST /api/assets/{asset}/loaded", s.handleAssetLoaded)
	s.mux.HandleFunc("POST /api/charts/accel/{state}", s.handleChartSurface)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("GET /api/media", s.handleMedia)
	s.mux.HandleFunc("GET /api/camera", s.handleCamera)
	s.mux.HandleFunc("POST /api/media/pictures", s.handleTakePicture)

	s.mux.HandleFunc("GET /instruments/compass.png", s.handleCompassPNG)
	s.mux.HandleFunc("GET /instruments/attitude.png", s.handleAttitudePNG)
	s.mux.HandleFunc("GET /charts/accel.png", s.handleChartPNG)

	if s.library != nil {
		s.mux.Handle("GET "+media.URLPrefix, s.library.Handler())
	}

	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}
