package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/flight-instruments/internal/dashboard"
)

// logStats periodically logs the pipeline counters
func logStats(ctx context.Context, d *dashboard.Dashboard, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			state := d.Binder().Snapshot()
			series := d.Series()

			updated := "never"
			if !state.UpdatedAt.IsZero() {
				updated = humanize.Time(state.UpdatedAt)
			}

			logger.Info("dashboard stats",
				slog.String("lastUpdate", updated),
				slog.Bool("armed", state.Status.Armed),
				slog.String("mode", state.Status.FlightMode),
				slog.Group("chart",
					slog.Int("points", len(state.Chart.Points)),
					slog.String("redraws", humanize.Comma(int64(series.Redraws()))),
					slog.String("shifts", humanize.Comma(int64(series.Shifts()))),
				),
				slog.Group("events",
					slog.String("dropped", humanize.Comma(int64(d.DroppedEvents()))),
				),
			)
		}
	}
}
