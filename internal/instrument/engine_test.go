package instrument

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

func TestCompassNeedle(t *testing.T) {
	needle := BBox{Width: 40, Height: 200}
	base := Transform{Translate{X: 80, Y: 0}}

	got := CompassNeedle(telemetry.Orientation{Yaw: math.Pi / 2}, needle, base)

	want := "rotate(-90 20 100) translate(80 0)"
	if got.String() != want {
		t.Errorf("expected %q, got %q", want, got.String())
	}
	if len(base) != 1 {
		t.Error("base transform was modified")
	}
}

func TestHorizon(t *testing.T) {
	needle := BBox{Width: 100, Height: 100}
	gauge := BBox{Width: 100, Height: 300}
	base := Transform{Translate{X: 0, Y: -100}}

	needleT, gaugeT := Horizon(telemetry.Orientation{Roll: math.Pi / 2}, needle, gauge, base)

	if want := "rotate(-90 50 50)"; needleT.String() != want {
		t.Errorf("needle: expected %q, got %q", want, needleT.String())
	}
	if want := "rotate(-90 50 50) translate(0 -100) translate(0 0)"; gaugeT.String() != want {
		t.Errorf("gauge: expected %q, got %q", want, gaugeT.String())
	}
}

func TestHorizon_PitchIsLinearAndNotNegated(t *testing.T) {
	gauge := BBox{Width: 100, Height: 300}

	for _, pitch := range []float64{-math.Pi / 2, -0.3, 0, 0.1, 0.2, math.Pi / 4} {
		_, gaugeT := Horizon(telemetry.Orientation{Pitch: pitch}, BBox{}, gauge, nil)

		last, ok := gaugeT[len(gaugeT)-1].(Translate)
		if !ok {
			t.Fatalf("pitch %v: last step is %T, expected Translate", pitch, gaugeT[len(gaugeT)-1])
		}
		if want := pitch * 300 / math.Pi; math.Abs(last.Y-want) > 1e-9 {
			t.Errorf("pitch %v: expected offset %v, got %v", pitch, want, last.Y)
		}
	}

	if math.Abs(PitchOffset(0.2, 300)-2*PitchOffset(0.1, 300)) > 1e-9 {
		t.Error("pitch offset is not linear")
	}
}

func TestEngine_IsPure(t *testing.T) {
	o := telemetry.Orientation{Roll: 0.3, Pitch: -0.2, Yaw: 2.1}
	needle := BBox{Width: 64, Height: 64}
	gauge := BBox{Width: 64, Height: 128}
	base := Transform{Translate{Y: -32}}

	a := CompassNeedle(o, needle, base)
	b := CompassNeedle(o, needle, base)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("compass transform changed between calls:\n%s", diff)
	}

	n1, g1 := Horizon(o, needle, gauge, base)
	n2, g2 := Horizon(o, needle, gauge, base)
	if diff := cmp.Diff([]Transform{n1, g1}, []Transform{n2, g2}); diff != "" {
		t.Errorf("horizon transforms changed between calls:\n%s", diff)
	}
}

func TestDegrees(t *testing.T) {
	if got := Degrees(math.Pi); got != 180 {
		t.Errorf("expected 180, got %v", got)
	}
	if got := -Degrees(math.Pi / 2); got != -90 {
		t.Errorf("expected -90, got %v", got)
	}
}
