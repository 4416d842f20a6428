package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-instruments/internal/chart"
	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
	"github.com/roman-kulish/flight-instruments/internal/view"
)

// Snapshot is the input file format. Points are [unix ms, value] pairs.
type Snapshot struct {
	Orientation telemetry.Orientation `json:"orientation"`
	Status      telemetry.Status      `json:"status"`
	Points      []chart.Point         `json:"points"`
}

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	snapshot, err := readSnapshot(config.InputFile)
	if err != nil {
		return err
	}
	if err = snapshot.Orientation.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	raster, err := instrument.NewRaster(config.Size)
	if err != nil {
		return fmt.Errorf("creating raster: %w", err)
	}

	for _, in := range config.Instruments {
		if err = ctx.Err(); err != nil {
			return err
		}

		start := time.Now()

		var buf bytes.Buffer
		switch in {
		case InstrumentCompass:
			err = renderCompass(&buf, raster, snapshot, config)
		case InstrumentAttitude:
			err = renderAttitude(&buf, raster, snapshot, config)
		case InstrumentChart:
			err = renderChart(&buf, snapshot, config)
		default:
			err = fmt.Errorf("unknown instrument '%s'", in)
		}
		if err != nil {
			return fmt.Errorf("rendering %s: %w", in, err)
		}

		path := filepath.Join(config.OutputDir, string(in)+".png")
		if err = os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		logger.Info("image saved",
			slog.String("path", path),
			slog.String("size", humanize.Bytes(uint64(buf.Len()))),
			slog.Duration("elapsed", time.Since(start)))
	}

	return nil
}

func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var s Snapshot
	if err = json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &s, nil
}

func renderCompass(buf *bytes.Buffer, raster *instrument.Raster, s *Snapshot, config *Config) error {
	var compass instrument.Compass
	if err := compass.Load(raster.CompassDocument()); err != nil {
		return err
	}
	compass.Apply(s.Orientation)

	var captions []string
	if !config.NoCaptions {
		captions = append(captions, fmt.Sprintf("HDG %s°", humanize.FtoaWithDigits(view.NewAttitudeView(s.Orientation, nil, nil, nil).Heading, 1)))
	}

	img, err := raster.DrawCompass(captions...)
	if err != nil {
		return err
	}
	return instrument.EncodePNG(buf, img)
}

func renderAttitude(buf *bytes.Buffer, raster *instrument.Raster, s *Snapshot, config *Config) error {
	var indicator instrument.AttitudeIndicator
	if err := indicator.Load(raster.AttitudeDocument()); err != nil {
		return err
	}
	indicator.Apply(s.Orientation)

	var captions []string
	if !config.NoCaptions {
		roll := humanize.FtoaWithDigits(instrument.Degrees(s.Orientation.Roll), 1)
		pitch := humanize.FtoaWithDigits(instrument.Degrees(s.Orientation.Pitch), 1)
		captions = append(captions, fmt.Sprintf("R %s° P %s°", roll, pitch))

		if s.Status.Armed {
			captions = append(captions, "ARMED "+s.Status.FlightMode)
		} else {
			captions = append(captions, "DISARMED "+s.Status.FlightMode)
		}
	}

	img, err := raster.DrawAttitude(captions...)
	if err != nil {
		return err
	}
	return instrument.EncodePNG(buf, img)
}

func renderChart(buf *bytes.Buffer, s *Snapshot, config *Config) error {
	series := chart.NewSeries("accel.z", chart.DefaultHorizon)
	series.Attach()

	feed := chart.NewFeed("accel.z", series)
	for _, p := range s.Points {
		feed.Push(p.Time, p.Value)
	}

	return series.RenderPNG(buf, config.ChartWidth, config.ChartHeight)
}
