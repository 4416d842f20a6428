package chart

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNotEnoughPoints is returned when rendering a series with fewer than two
// distinct samples
var ErrNotEnoughPoints = errors.New("not enough points to render")

// Series is an in-memory Surface. It mirrors what a browser chart would show
// and renders it to PNG on demand. A detached series is absent.
type Series struct {
	name    string
	horizon time.Duration

	mu       sync.RWMutex
	attached bool
	points   []Point
	redraws  uint64
	shifts   uint64
}

// NewSeries creates a detached series
func NewSeries(name string, horizon time.Duration) *Series {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Series{name: name, horizon: horizon}
}

// Attach makes the series present
func (s *Series) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = true
}

// Detach makes the series absent and clears it
func (s *Series) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.points = nil
}

func (s *Series) Present() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached
}

func (s *Series) AddPoint(p Point, redraw, shift bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = append(s.points, p)
	if shift {
		s.shifts++
		i := 0
		for i < len(s.points)-1 && p.Time.Sub(s.points[i].Time) > s.horizon {
			i++
		}
		s.points = append(s.points[:0], s.points[i:]...)
	}
	if redraw {
		s.redraws++
	}
}

// Points returns a copy of the visible samples
func (s *Series) Points() []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]Point, len(s.points))
	copy(points, s.points)
	return points
}

// Redraws returns the number of accepted redraws
func (s *Series) Redraws() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redraws
}

// Shifts returns the number of updates that shifted the visible range
func (s *Series) Shifts() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shifts
}

// RenderPNG draws the visible samples as a line chart
func (s *Series) RenderPNG(w io.Writer, width, height int) error {
	points := s.Points()
	if len(points) < 2 || !points[len(points)-1].Time.After(points[0].Time) {
		return ErrNotEnoughPoints
	}

	xValues := make([]time.Time, len(points))
	yValues := make([]float64, len(points))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, p := range points {
		xValues[i] = p.Time
		yValues[i] = p.Value
		minY = math.Min(minY, p.Value)
		maxY = math.Max(maxY, p.Value)
	}

	pad := (maxY - minY) * 0.1
	if pad == 0 {
		pad = 1
	}

	graph := chart.Chart{
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("15:04:05"),
		},
		YAxis: chart.YAxis{
			Name: s.name,
			Range: &chart.ContinuousRange{
				Min: minY - pad,
				Max: maxY + pad,
			},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return humanize.FormatFloat("#,###.##", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: s.name,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("2f7ed8"),
					StrokeWidth: 2,
				},
				XValues: xValues,
				YValues: yValues,
			},
		},
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("rendering %s chart: %w", s.name, err)
	}
	return nil
}
