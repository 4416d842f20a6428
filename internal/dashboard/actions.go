package dashboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
	"github.com/roman-kulish/flight-instruments/internal/view"
)

// Arm asks the vehicle to arm, regardless of the current status
func (d *Dashboard) Arm() {
	d.metrics.actions.WithLabelValues("arm").Inc()
	d.command.Set(telemetry.StatusCommand{Armed: true})
}

// Disarm asks the vehicle to disarm, regardless of the current status
func (d *Dashboard) Disarm() {
	d.metrics.actions.WithLabelValues("disarm").Inc()
	d.command.Set(telemetry.StatusCommand{Armed: false})
}

// ComeHere sends the vehicle a single waypoint at the operator position.
// It reports false, publishing nothing, when no position is available.
func (d *Dashboard) ComeHere(ctx context.Context) bool {
	if d.locator == nil {
		d.metrics.locateFailures.Inc()
		d.logger.Debug("come here ignored: no locator")
		return false
	}

	p, err := d.locator.CurrentPosition(ctx)
	if err != nil {
		d.metrics.locateFailures.Inc()
		d.logger.Debug(fmt.Sprintf("come here ignored: %s", err.Error()))
		return false
	}

	return d.ComeHereAt(p)
}

// ComeHereAt sends the vehicle a single waypoint at p. An invalid position
// publishes nothing.
func (d *Dashboard) ComeHereAt(p telemetry.Position) bool {
	if err := p.Validate(); err != nil {
		d.metrics.locateFailures.Inc()
		d.logger.Debug(fmt.Sprintf("come here ignored: %s", err.Error()))
		return false
	}

	d.metrics.actions.WithLabelValues("come_here").Inc()
	d.waypoints.Set(telemetry.ComeHere(p))
	d.logger.Info("come here sent", slog.Float64("latitude", p.Latitude), slog.Float64("longitude", p.Longitude))
	return true
}

// LoadCompass captures the compass geometry from the rendering surface.
// The current orientation is applied right away.
func (d *Dashboard) LoadCompass(ctx context.Context, doc instrument.Document) error {
	var err error
	if cErr := d.loop.Call(ctx, func() {
		if err = d.compass.Load(doc); err != nil {
			return
		}
		d.reapply()
	}); cErr != nil {
		return fmt.Errorf("loading compass: %w", cErr)
	}
	return err
}

// LoadAttitude captures the artificial horizon geometry from the rendering
// surface. The current orientation is applied right away.
func (d *Dashboard) LoadAttitude(ctx context.Context, doc instrument.Document) error {
	var err error
	if cErr := d.loop.Call(ctx, func() {
		if err = d.indicator.Load(doc); err != nil {
			return
		}
		d.reapply()
	}); cErr != nil {
		return fmt.Errorf("loading attitude indicator: %w", cErr)
	}
	return err
}

// reapply recomputes the instrument geometry for the last orientation
func (d *Dashboard) reapply() {
	o := d.binder.Orientation.Get()

	compass, _ := d.compass.Apply(o)
	needle, gauge, _ := d.indicator.Apply(o)
	d.binder.Attitude.Set(view.NewAttitudeView(o, compass, needle, gauge))
}

// AttachChart marks the strip chart surface as present. The change is
// ordered with the samples on the event loop.
func (d *Dashboard) AttachChart(ctx context.Context) error {
	if err := d.loop.Call(ctx, d.series.Attach); err != nil {
		return fmt.Errorf("attaching chart: %w", err)
	}
	return nil
}

// DetachChart marks the strip chart surface as absent. Samples handled after
// it returns are dropped.
func (d *Dashboard) DetachChart(ctx context.Context) error {
	if err := d.loop.Call(ctx, d.series.Detach); err != nil {
		return fmt.Errorf("detaching chart: %w", err)
	}
	return nil
}
