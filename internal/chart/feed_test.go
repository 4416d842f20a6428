package chart

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type update struct {
	p      Point
	redraw bool
	shift  bool
}

// fakeSurface records chart updates
type fakeSurface struct {
	present bool
	updates []update
}

func (s *fakeSurface) Present() bool { return s.present }

func (s *fakeSurface) AddPoint(p Point, redraw, shift bool) {
	s.updates = append(s.updates, update{p, redraw, shift})
}

func TestFeed_RedrawSequence(t *testing.T) {
	surface := &fakeSurface{present: true}
	feed := NewFeed("accel", surface)

	times := []int64{0, 100, 600, 1101}
	want := []bool{true, false, true, true}

	for i, ms := range times {
		tick := feed.Push(at(ms), float64(i))
		if tick.Redraw != want[i] {
			t.Errorf("sample at %dms: expected redraw %v, got %v", ms, want[i], tick.Redraw)
		}
		if feed.Span() > feed.Horizon() {
			t.Errorf("sample at %dms: span %s exceeds horizon", ms, feed.Span())
		}
	}

	if len(surface.updates) != len(times) {
		t.Fatalf("expected every sample to be recorded, got %d updates", len(surface.updates))
	}
	for i, u := range surface.updates {
		if u.redraw != want[i] {
			t.Errorf("update %d: surface saw redraw %v", i, u.redraw)
		}
		if u.shift {
			t.Errorf("update %d: unexpected shift", i)
		}
	}
	if feed.State() != Active {
		t.Errorf("expected active feed, got %s", feed.State())
	}
}

func TestFeed_BoundaryIsExclusive(t *testing.T) {
	feed := NewFeed("accel", &fakeSurface{present: true})

	var got []bool
	for _, ms := range []int64{0, 100, 600, 1100} {
		got = append(got, feed.Push(at(ms), 0).Redraw)
	}

	want := []bool{true, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFeed_AbsentSurfaceDropsSamples(t *testing.T) {
	surface := &fakeSurface{}
	feed := NewFeed("accel", surface)

	tick := feed.Push(at(0), 1)
	if !tick.Dropped {
		t.Fatal("expected sample to be dropped")
	}
	if feed.State() != Uninitialized {
		t.Errorf("expected uninitialized feed, got %s", feed.State())
	}
	if len(feed.Window()) != 0 {
		t.Error("dropped samples must not be buffered")
	}

	surface.present = true
	tick = feed.Push(at(100), 2)
	if tick.Dropped || !tick.Redraw {
		t.Errorf("first sample after the surface appears should redraw, got %+v", tick)
	}
	if len(feed.Window()) != 1 {
		t.Errorf("expected 1 retained sample, got %d", len(feed.Window()))
	}

	surface.present = false
	feed.Push(at(200), 3)
	if feed.State() != Uninitialized || len(feed.Window()) != 0 {
		t.Error("feed should reset once the surface disappears")
	}
}

func TestFeed_ShiftWhenHorizonExceeded(t *testing.T) {
	surface := &fakeSurface{present: true}
	feed := NewFeed("accel", surface, WithHorizon(time.Second), WithRedrawInterval(100*time.Millisecond))

	feed.Push(at(0), 0)
	feed.Push(at(600), 0)
	tick := feed.Push(at(1200), 0)

	if !tick.Shift || tick.Evicted != 1 {
		t.Errorf("expected a shift evicting 1 sample, got %+v", tick)
	}
	if feed.Span() != 600*time.Millisecond {
		t.Errorf("expected 600ms span, got %s", feed.Span())
	}
}

func TestSeries(t *testing.T) {
	s := NewSeries("accel z", time.Second)
	if s.Present() {
		t.Fatal("new series should be detached")
	}
	s.Attach()

	feed := NewFeed("accel", s, WithHorizon(time.Second))
	for i, ms := range []int64{0, 400, 800, 1200, 1600} {
		feed.Push(at(ms), float64(i))
	}

	points := s.Points()
	if len(points) != 3 {
		t.Fatalf("expected 3 visible points, got %d", len(points))
	}
	if points[0].Time != at(800) {
		t.Errorf("expected oldest visible point at 800ms, got %v", points[0].Time)
	}
	if s.Redraws() != 3 {
		t.Errorf("expected 3 redraws, got %d", s.Redraws())
	}

	var buf bytes.Buffer
	if err := s.RenderPNG(&buf, 400, 200); err != nil {
		t.Fatalf("Failed to render chart: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("rendered chart is not a PNG")
	}

	s.Detach()
	if err := s.RenderPNG(&buf, 400, 200); !errors.Is(err, ErrNotEnoughPoints) {
		t.Errorf("expected ErrNotEnoughPoints, got %v", err)
	}
}
