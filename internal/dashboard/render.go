package dashboard

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-instruments/internal/instrument"
)

// ErrNoRaster is returned when server side rendering is not configured
var ErrNoRaster = errors.New("raster rendering not configured")

// RenderCompass writes the compass as a PNG image captioned with the heading
func (d *Dashboard) RenderCompass(w io.Writer) error {
	if d.raster == nil {
		return ErrNoRaster
	}

	view := d.binder.Attitude.Get()
	img, err := d.raster.DrawCompass(fmt.Sprintf("HDG %s°", humanize.FtoaWithDigits(view.Heading, 1)))
	if err != nil {
		return fmt.Errorf("drawing compass: %w", err)
	}
	return instrument.EncodePNG(w, img)
}

// RenderAttitude writes the artificial horizon as a PNG image captioned
// with roll, pitch and the arming state
func (d *Dashboard) RenderAttitude(w io.Writer) error {
	if d.raster == nil {
		return ErrNoRaster
	}

	view := d.binder.Attitude.Get()
	status := d.binder.Status.Get()

	armed := "DISARMED"
	if status.Armed {
		armed = "ARMED"
	}

	img, err := d.raster.DrawAttitude(
		fmt.Sprintf("R %s° P %s°", humanize.FtoaWithDigits(view.Roll, 1), humanize.FtoaWithDigits(view.Pitch, 1)),
		armed,
	)
	if err != nil {
		return fmt.Errorf("drawing attitude indicator: %w", err)
	}
	return instrument.EncodePNG(w, img)
}

// RenderChart writes the strip chart as a PNG image
func (d *Dashboard) RenderChart(w io.Writer, width, height int) error {
	if err := d.series.RenderPNG(w, width, height); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}
