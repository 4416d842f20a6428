package dashboard

import (
	"context"
	"log/slog"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/media"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

func (d *Dashboard) onImage(img telemetry.CompressedImage) {
	defer d.observe(telemetry.TopicImage, time.Now())

	d.lastImage.Store(&img)
	d.logger.Debug("camera frame received", slog.String("format", img.Format), slog.Int("size", len(img.Data)))
}

// Snapshot returns the last camera frame received from the vehicle
func (d *Dashboard) Snapshot(ctx context.Context) (media.Image, error) {
	if err := ctx.Err(); err != nil {
		return media.Image{}, err
	}

	img := d.lastImage.Load()
	if img == nil {
		return media.Image{}, media.ErrNoImage
	}
	return media.Image{ContentType: media.ContentType(img.Format), Data: img.Data}, nil
}
