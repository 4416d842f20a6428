package chart

import (
	"encoding/json"
	"time"
)

// DefaultHorizon is the longest time span a chart window retains
const DefaultHorizon = 15 * time.Second

// Point is a single chart sample. It is encoded as a [milliseconds, value]
// pair, the shape browser charting libraries expect.
type Point struct {
	Time  time.Time
	Value float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{float64(p.Time.UnixMilli()), p.Value})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	p.Time = time.UnixMilli(int64(pair[0]))
	p.Value = pair[1]
	return nil
}

// Window is an ordered run of samples, appended at the tail and evicted
// from the head, whose span never exceeds the horizon after an append
type Window struct {
	horizon time.Duration
	points  []Point
}

// NewWindow creates an empty window
func NewWindow(horizon time.Duration) *Window {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &Window{horizon: horizon}
}

func (w *Window) Horizon() time.Duration {
	return w.horizon
}

func (w *Window) Len() int {
	return len(w.points)
}

// Points returns a copy of the retained samples, oldest first
func (w *Window) Points() []Point {
	points := make([]Point, len(w.points))
	copy(points, w.points)
	return points
}

// Extremes returns the oldest and newest retained samples
func (w *Window) Extremes() (oldest, newest Point, ok bool) {
	if len(w.points) == 0 {
		return Point{}, Point{}, false
	}
	return w.points[0], w.points[len(w.points)-1], true
}

// Span is the time between the oldest and the newest retained sample
func (w *Window) Span() time.Duration {
	oldest, newest, ok := w.Extremes()
	if !ok {
		return 0
	}
	return newest.Time.Sub(oldest.Time)
}

// Exceeds reports whether the current span is beyond the horizon
func (w *Window) Exceeds() bool {
	return w.Span() > w.horizon
}

// Append adds p at the tail and evicts head samples until the span is within
// the horizon again. It returns the number of evicted samples.
func (w *Window) Append(p Point) int {
	w.points = append(w.points, p)

	evicted := 0
	for len(w.points) > 1 && p.Time.Sub(w.points[evicted].Time) > w.horizon {
		evicted++
	}
	if evicted > 0 {
		w.points = append(w.points[:0], w.points[evicted:]...)
	}
	return evicted
}

// Reset drops every retained sample
func (w *Window) Reset() {
	w.points = w.points[:0]
}
