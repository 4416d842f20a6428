package view

import (
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/chart"
	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// AttitudeView is the geometry last computed for the attitude instruments.
// Transforms are empty until the matching asset has loaded.
type AttitudeView struct {
	Heading        float64 `json:"heading"` // Degrees, [0, 360)
	Roll           float64 `json:"roll"`    // Degrees
	Pitch          float64 `json:"pitch"`   // Degrees
	CompassNeedle  string  `json:"compassNeedle,omitempty"`
	RollNeedle     string  `json:"rollNeedle,omitempty"`
	RollGauge      string  `json:"rollGauge,omitempty"`
	CompassLoaded  bool    `json:"compassLoaded"`
	AttitudeLoaded bool    `json:"attitudeLoaded"`
}

// ChartView is the last strip chart update
type ChartView struct {
	Tick    chart.Tick    `json:"tick"`
	Points  []chart.Point `json:"points,omitempty"`
	Redraws uint64        `json:"redraws"`
}

// State is everything a rendering surface needs to draw the dashboard
type State struct {
	Orientation telemetry.Orientation `json:"orientation"`
	Motion      telemetry.Motion      `json:"motion"`
	Status      telemetry.Status      `json:"status"`
	Attitude    AttitudeView          `json:"attitude"`
	Chart       ChartView             `json:"chart"`
	Resolutions []string              `json:"resolutions"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// Binder holds the last known value of every instrument category. It is
// the single source of truth for rendering.
type Binder struct {
	Orientation *Value[telemetry.Orientation]
	Motion      *Value[telemetry.Motion]
	Status      *Value[telemetry.Status]
	Attitude    *Value[AttitudeView]
	Chart       *Value[ChartView]
	Resolutions *Value[[]string]

	updated *Value[time.Time]
}

// NewBinder creates a binder with zero attitude, zero motion and a
// disarmed status
func NewBinder(logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Binder{
		Orientation: NewValue("orientation", telemetry.Orientation{}, WithLogger[telemetry.Orientation](logger)),
		Motion:      NewValue("motion", telemetry.Motion{}, WithLogger[telemetry.Motion](logger)),
		Status:      NewValue("status", telemetry.Status{}, WithLogger[telemetry.Status](logger)),
		Attitude:    NewValue("attitude", AttitudeView{}, WithLogger[AttitudeView](logger)),
		Chart:       NewValue("chart", ChartView{}, WithLogger[ChartView](logger)),
		Resolutions: NewValue("resolutions", []string(nil), WithLogger[[]string](logger)),
		updated:     NewValue("updated", time.Time{}),
	}
}

// Touch records the time of the last accepted pipeline step
func (b *Binder) Touch(now time.Time) {
	b.updated.Set(now)
}

// Snapshot returns the full renderable state
func (b *Binder) Snapshot() State {
	return State{
		Orientation: b.Orientation.Get(),
		Motion:      b.Motion.Get(),
		Status:      b.Status.Get(),
		Attitude:    b.Attitude.Get(),
		Chart:       b.Chart.Get(),
		Resolutions: b.Resolutions.Get(),
		UpdatedAt:   b.updated.Get(),
	}
}

// NewAttitudeView builds the view for o from the instrument transforms.
// Nil transforms mean the instrument is not loaded.
func NewAttitudeView(o telemetry.Orientation, compass, rollNeedle, rollGauge instrument.Transform) AttitudeView {
	heading := math.Mod(instrument.Degrees(o.Yaw), 360)
	if heading < 0 {
		heading += 360
	}

	v := AttitudeView{
		Heading: heading,
		Roll:    instrument.Degrees(o.Roll),
		Pitch:   instrument.Degrees(o.Pitch),
	}
	if compass != nil {
		v.CompassNeedle = compass.String()
		v.CompassLoaded = true
	}
	if rollNeedle != nil {
		v.RollNeedle = rollNeedle.String()
		v.RollGauge = rollGauge.String()
		v.AttitudeLoaded = true
	}
	return v
}
