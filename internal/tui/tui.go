package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/roman-kulish/flight-instruments/internal/chart"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
	"github.com/roman-kulish/flight-instruments/internal/view"
)

const refreshRate = 200 * time.Millisecond

// Controller is the set of operator actions bound to keys
type Controller interface {
	Arm()
	Disarm()
	ComeHere(ctx context.Context) bool
}

// WithLogger sets the logger for the terminal surface
func WithLogger(logger *slog.Logger) func(s *Surface) {
	return func(s *Surface) {
		s.logger = logger
	}
}

// Surface renders the binder state on a terminal. Keys: a arms, d disarms,
// h calls the vehicle to the operator, q quits.
type Surface struct {
	binder *view.Binder
	ctl    Controller

	attitude *widgets.Paragraph
	status   *widgets.Paragraph
	accel    *widgets.Plot
	help     *widgets.Paragraph

	logger *slog.Logger
}

// New creates a terminal surface for b
func New(b *view.Binder, ctl Controller, options ...func(s *Surface)) *Surface {
	s := Surface{
		binder: b,
		ctl:    ctl,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.attitude = widgets.NewParagraph()
	s.attitude.Title = "Attitude"
	s.attitude.SetRect(0, 0, 30, 7)

	s.status = widgets.NewParagraph()
	s.status.Title = "Status"
	s.status.SetRect(30, 0, 60, 7)

	s.accel = widgets.NewPlot()
	s.accel.Title = "accel.z"
	s.accel.Marker = widgets.MarkerBraille
	s.accel.LineColors = []ui.Color{ui.ColorCyan}
	s.accel.AxesColor = ui.ColorWhite
	s.accel.SetRect(0, 7, 60, 22)

	s.help = widgets.NewParagraph()
	s.help.Border = false
	s.help.Text = "[a](fg:green) arm  [d](fg:red) disarm  [h](fg:yellow) come here  [q] quit"
	s.help.SetRect(0, 22, 60, 23)

	return &s
}

// Run draws the surface until ctx is cancelled or the operator quits
func (s *Surface) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	defer ui.Close()

	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	events := ui.PollEvents()
	s.render()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			s.render()

		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "a":
				s.ctl.Arm()
			case "d":
				s.ctl.Disarm()
			case "h":
				if !s.ctl.ComeHere(ctx) {
					s.logger.Debug("come here unavailable")
				}
			}
		}
	}
}

func (s *Surface) render() {
	state := s.binder.Snapshot()

	s.attitude.Text = AttitudeText(state.Attitude)
	s.status.Text = StatusText(state.Status, state.UpdatedAt)

	items := []ui.Drawable{s.attitude, s.status, s.help}
	if data := PlotData(state.Chart.Points); len(data) >= 2 {
		s.accel.Data = [][]float64{data}
		items = append(items, s.accel)
	}

	ui.Render(items...)
}

// AttitudeText formats the attitude view for a paragraph widget
func AttitudeText(v view.AttitudeView) string {
	return fmt.Sprintf("Heading %6.1f°\nRoll    %6.1f°\nPitch   %6.1f°", v.Heading, v.Roll, v.Pitch)
}

// StatusText formats the vehicle status for a paragraph widget
func StatusText(st telemetry.Status, updated time.Time) string {
	var b strings.Builder

	if st.Armed {
		b.WriteString("[ARMED](fg:red,mod:bold)\n")
	} else {
		b.WriteString("[DISARMED](fg:green)\n")
	}

	mode := st.FlightMode
	if mode == "" {
		mode = "unknown"
	}
	fmt.Fprintf(&b, "Mode %s\n", strings.ToUpper(mode))

	if updated.IsZero() {
		b.WriteString("No telemetry")
	} else {
		fmt.Fprintf(&b, "Updated %s", updated.Format("15:04:05"))
	}
	return b.String()
}

// PlotData extracts the values of the chart window
func PlotData(points []chart.Point) []float64 {
	data := make([]float64, len(points))
	for i, p := range points {
		data[i] = p.Value
	}
	return data
}
