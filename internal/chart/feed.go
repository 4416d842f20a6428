package chart

import (
	"io"
	"log/slog"
	"time"
)

const (
	Uninitialized State = iota
	Active
)

// State is the lifecycle state of a Feed
type State int

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	default:
		return "uninitialized"
	}
}

// Surface is where a chart is drawn. Present reports whether the surface
// exists right now; AddPoint appends a sample, optionally redrawing and
// shifting the visible range, as a single visual update.
type Surface interface {
	Present() bool
	AddPoint(p Point, redraw, shift bool)
}

// Tick describes what a Feed did with a single sample
type Tick struct {
	Point   Point `json:"point"`
	Redraw  bool  `json:"redraw"`
	Shift   bool  `json:"shift"`
	Evicted int   `json:"evicted"`
	Dropped bool  `json:"dropped"`
}

// WithHorizon sets the retained time span of the feed
func WithHorizon(horizon time.Duration) func(f *Feed) {
	return func(f *Feed) {
		f.window = NewWindow(horizon)
	}
}

// WithRedrawInterval sets the minimum time between redraws
func WithRedrawInterval(interval time.Duration) func(f *Feed) {
	return func(f *Feed) {
		f.clock = NewRedrawClock(interval)
	}
}

// WithLogger sets the logger for the feed
func WithLogger(logger *slog.Logger) func(f *Feed) {
	return func(f *Feed) {
		f.logger = logger
	}
}

// Feed turns a stream of scalar samples into chart updates. It stays
// Uninitialized while the surface is absent and samples arriving in that
// state are dropped, not queued.
type Feed struct {
	name    string
	surface Surface
	clock   *RedrawClock
	window  *Window
	state   State

	logger *slog.Logger
}

// NewFeed creates a feed drawing onto surface
func NewFeed(name string, surface Surface, options ...func(f *Feed)) *Feed {
	f := Feed{
		name:    name,
		surface: surface,
		clock:   NewRedrawClock(DefaultRedrawInterval),
		window:  NewWindow(DefaultHorizon),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&f)
	}
	f.logger = f.logger.With(slog.String("chart", name))

	return &f
}

// Push processes a sample received at now
func (f *Feed) Push(now time.Time, value float64) Tick {
	p := Point{Time: now, Value: value}

	if f.surface == nil || !f.surface.Present() {
		if f.state == Active {
			f.logger.Debug("surface gone, feed reset")
			f.window.Reset()
		}
		f.state = Uninitialized
		return Tick{Point: p, Dropped: true}
	}

	if f.state == Uninitialized {
		f.logger.Debug("surface present, feed active")
		f.state = Active
	}

	shift := f.window.Exceeds()
	redraw := f.clock.ShouldRedraw(now)
	evicted := f.window.Append(p)
	shift = shift || evicted > 0

	f.surface.AddPoint(p, redraw, shift)

	return Tick{Point: p, Redraw: redraw, Shift: shift, Evicted: evicted}
}

func (f *Feed) Name() string {
	return f.name
}

func (f *Feed) State() State {
	return f.state
}

// Window returns a copy of the retained samples
func (f *Feed) Window() []Point {
	return f.window.Points()
}

// Span returns the time span of the retained samples
func (f *Feed) Span() time.Duration {
	return f.window.Span()
}

func (f *Feed) Horizon() time.Duration {
	return f.window.Horizon()
}
