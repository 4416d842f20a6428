package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/channel"
	"github.com/roman-kulish/flight-instruments/internal/chart"
	"github.com/roman-kulish/flight-instruments/internal/dispatch"
	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/params"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
	"github.com/roman-kulish/flight-instruments/internal/view"
)

const (
	defaultQueueSize = 256

	accelChart = "accel.z"
)

// ErrNoParams is returned by the settings operations when no parameter
// store is configured
var ErrNoParams = errors.New("parameter store not configured")

// WithLogger sets the logger for the dashboard
func WithLogger(logger *slog.Logger) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.logger = logger
	}
}

// WithMetrics sets the Prometheus collectors
func WithMetrics(m *Metrics) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.metrics = m
	}
}

// WithLocator sets the geolocation provider used by ComeHere
func WithLocator(l telemetry.Locator) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.locator = l
	}
}

// WithParams sets the parameter store holding the camera settings
func WithParams(store params.Store) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.camera = params.NewCamera(store)
	}
}

// WithRaster renders the instruments server side onto r
func WithRaster(r *instrument.Raster) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.raster = r
	}
}

// WithChart sets the strip chart redraw interval and horizon
func WithChart(redrawInterval, horizon time.Duration) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.redrawInterval = redrawInterval
		d.horizon = horizon
	}
}

// WithQueue sets the event queue size and overflow policy
func WithQueue(size int, policy dispatch.Policy) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.queueSize = size
		d.policy = policy
	}
}

// WithStrictDecoding closes a subscription on its first malformed payload
func WithStrictDecoding() func(d *Dashboard) {
	return func(d *Dashboard) {
		d.strict = true
	}
}

// WithClock sets the time source used for chart samples
func WithClock(now func() time.Time) func(d *Dashboard) {
	return func(d *Dashboard) {
		d.now = now
	}
}

// Dashboard wires the telemetry topics, the instruments, the strip chart
// and the view binder together. Every pipeline step runs on a single event
// loop, so the instruments and the chart are never touched concurrently.
type Dashboard struct {
	transport channel.Transport
	loop      *dispatch.Loop

	attitude    *channel.Topic[telemetry.Orientation]
	imu         *channel.Topic[telemetry.Motion]
	status      *channel.Topic[telemetry.Status]
	command     *channel.Topic[telemetry.StatusCommand]
	waypoints   *channel.Topic[telemetry.Waypoints]
	resolutions *channel.Topic[telemetry.Resolutions]
	images      *channel.Topic[telemetry.CompressedImage]
	subs        []*channel.Subscription

	binder *view.Binder

	compass         instrument.Compass
	indicator       instrument.AttitudeIndicator
	raster          *instrument.Raster
	rasterDial      instrument.Compass
	rasterIndicator instrument.AttitudeIndicator

	feed           *chart.Feed
	series         *chart.Series
	redrawInterval time.Duration
	horizon        time.Duration

	camera    *params.Camera
	lastImage atomic.Pointer[telemetry.CompressedImage]
	locator   telemetry.Locator
	metrics   *Metrics

	queueSize int
	policy    dispatch.Policy
	strict    bool
	now       func() time.Time

	logger *slog.Logger
}

// New creates a dashboard reading telemetry from transport
func New(transport channel.Transport, options ...func(d *Dashboard)) (*Dashboard, error) {
	d := Dashboard{
		transport:      transport,
		redrawInterval: chart.DefaultRedrawInterval,
		horizon:        chart.DefaultHorizon,
		queueSize:      defaultQueueSize,
		policy:         dispatch.PolicyBlock,
		now:            time.Now,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&d)
	}

	if err := d.policy.Validate(); err != nil {
		return nil, fmt.Errorf("creating dashboard: %w", err)
	}
	if d.metrics == nil {
		d.metrics = NewMetrics(nil)
	}

	d.loop = dispatch.NewLoop(d.queueSize,
		dispatch.WithLogger(d.logger),
		dispatch.WithPolicy(d.policy),
		dispatch.WithDropHook(d.metrics.droppedEvents.Inc),
	)
	d.binder = view.NewBinder(d.logger)
	d.series = chart.NewSeries(accelChart, d.horizon)
	d.feed = chart.NewFeed(accelChart, d.series,
		chart.WithHorizon(d.horizon),
		chart.WithRedrawInterval(d.redrawInterval),
		chart.WithLogger(d.logger),
	)

	if d.raster != nil {
		if err := d.rasterDial.Load(d.raster.CompassDocument()); err != nil {
			return nil, fmt.Errorf("loading raster compass: %w", err)
		}
		if err := d.rasterIndicator.Load(d.raster.AttitudeDocument()); err != nil {
			return nil, fmt.Errorf("loading raster attitude indicator: %w", err)
		}
	}

	opts := []channel.Option{
		channel.WithLogger(d.logger),
		channel.WithInvalidHook(func(topic string) { d.metrics.invalid.WithLabelValues(topic).Inc() }),
	}
	if d.strict {
		opts = append(opts, channel.WithStrictDecoding())
	}

	d.attitude = channel.NewTopic[telemetry.Orientation](telemetry.TopicAttitude, transport, d.loop, opts...)
	d.imu = channel.NewTopic[telemetry.Motion](telemetry.TopicIMU, transport, d.loop, opts...)
	d.status = channel.NewTopic[telemetry.Status](telemetry.TopicStatus, transport, d.loop, opts...)
	d.command = channel.NewTopic[telemetry.StatusCommand](telemetry.TopicStatus, transport, d.loop, opts...)
	d.waypoints = channel.NewTopic[telemetry.Waypoints](telemetry.TopicWaypoints, transport, d.loop, opts...)
	d.resolutions = channel.NewTopic[telemetry.Resolutions](telemetry.TopicResolutions, transport, d.loop, opts...)
	d.images = channel.NewTopic[telemetry.CompressedImage](telemetry.TopicImage, transport, d.loop, opts...)

	return &d, nil
}

// Run subscribes to the telemetry topics and processes events until the
// context is cancelled. A topic that cannot be subscribed is logged and
// left silent.
func (d *Dashboard) Run(ctx context.Context) error {
	loopErr := make(chan error, 1)
	go func() {
		loopErr <- d.loop.Run(ctx)
	}()

	d.subscribe()
	d.logger.Info("dashboard started", slog.Int("subscriptions", len(d.subs)))

	err := <-loopErr

	for _, sub := range d.subs {
		_ = sub.Close()
		if sErr := sub.Err(); sErr != nil {
			d.logger.Warn(fmt.Sprintf("subscription %s failed: %s", sub.Topic, sErr.Error()), slog.String("id", sub.ID.String()))
		}
	}
	d.command.Close()
	d.waypoints.Close()

	d.logger.Info("dashboard stopped", slog.Uint64("droppedEvents", d.loop.Dropped()))
	return err
}

func (d *Dashboard) subscribe() {
	subscribe := func(sub *channel.Subscription, err error) {
		if err != nil {
			d.logger.Warn(fmt.Sprintf("channel unavailable: %s", err.Error()))
			return
		}
		d.subs = append(d.subs, sub)
	}

	subscribe(d.attitude.Subscribe(d.onAttitude))
	subscribe(d.imu.Subscribe(d.onMotion))
	subscribe(d.status.Subscribe(d.onStatus))
	subscribe(d.resolutions.Subscribe(d.onResolutions))
	subscribe(d.images.Subscribe(d.onImage))
}

// Flush waits until every event posted so far has been handled
func (d *Dashboard) Flush(ctx context.Context) error {
	return d.loop.Call(ctx, func() {})
}

func (d *Dashboard) observe(topic string, start time.Time) {
	d.metrics.snapshots.WithLabelValues(topic).Inc()
	d.metrics.handlerLatency.Observe(time.Since(start).Seconds())
}

func (d *Dashboard) onAttitude(o telemetry.Orientation) {
	defer d.observe(telemetry.TopicAttitude, time.Now())

	compass, _ := d.compass.Apply(o)
	needle, gauge, _ := d.indicator.Apply(o)
	d.rasterDial.Apply(o)
	d.rasterIndicator.Apply(o)

	d.binder.Orientation.Set(o)
	d.binder.Attitude.Set(view.NewAttitudeView(o, compass, needle, gauge))
	d.binder.Touch(d.now())
}

func (d *Dashboard) onMotion(m telemetry.Motion) {
	defer d.observe(telemetry.TopicIMU, time.Now())

	now := d.now()
	d.binder.Motion.Set(m)

	tick := d.feed.Push(now, m.Accel.Z)
	switch {
	case tick.Dropped:
		d.metrics.droppedSamples.Inc()
	case tick.Redraw:
		d.metrics.redraws.WithLabelValues("accepted").Inc()
	default:
		d.metrics.redraws.WithLabelValues("suppressed").Inc()
	}
	d.metrics.evicted.Add(float64(tick.Evicted))

	d.binder.Chart.Set(view.ChartView{
		Tick:    tick,
		Points:  d.feed.Window(),
		Redraws: d.series.Redraws(),
	})
	d.binder.Touch(now)
}

func (d *Dashboard) onStatus(s telemetry.Status) {
	defer d.observe(telemetry.TopicStatus, time.Now())

	d.binder.Status.Set(s)
	d.binder.Touch(d.now())
}

func (d *Dashboard) onResolutions(r telemetry.Resolutions) {
	defer d.observe(telemetry.TopicResolutions, time.Now())

	d.binder.Resolutions.Set(r.Options())
}

// Binder returns the renderable state
func (d *Dashboard) Binder() *view.Binder {
	return d.binder
}

// Series returns the server side strip chart surface
func (d *Dashboard) Series() *chart.Series {
	return d.series
}

// Raster returns the server side instrument surface, if any
func (d *Dashboard) Raster() *instrument.Raster {
	return d.raster
}

// DroppedEvents returns the number of events lost to queue overflow
func (d *Dashboard) DroppedEvents() uint64 {
	return d.loop.Dropped()
}
