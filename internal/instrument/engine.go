package instrument

import (
	"math"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// BBox is the bounding box of a rendered element
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Pivot is the rotation centre used for needles, half the box size
func (b BBox) Pivot() (float64, float64) {
	return b.Width / 2, b.Height / 2
}

// Degrees converts radians to degrees
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// PitchOffset maps pitch linearly onto a vertical offset proportional to the
// gauge height: ±π spans one gauge height.
func PitchOffset(pitch, gaugeHeight float64) float64 {
	return pitch * gaugeHeight / math.Pi
}

// CompassNeedle computes the compass needle transform: the base transform
// rotated by the negated yaw around the needle pivot.
func CompassNeedle(o telemetry.Orientation, needle BBox, base Transform) Transform {
	cx, cy := needle.Pivot()

	t := make(Transform, 0, len(base)+1)
	t = append(t, Rotate{Angle: -Degrees(o.Yaw), CX: cx, CY: cy})
	return append(t, base...)
}

// Horizon computes the artificial horizon transforms. The roll needle is
// only rotated. The gauge is rotated the same way, then placed by its base
// transform, then shifted by the pitch offset.
func Horizon(o telemetry.Orientation, needle, gauge BBox, base Transform) (needleT, gaugeT Transform) {
	cx, cy := needle.Pivot()
	roll := Rotate{Angle: -Degrees(o.Roll), CX: cx, CY: cy}

	needleT = Transform{roll}

	gaugeT = make(Transform, 0, len(base)+2)
	gaugeT = append(gaugeT, roll)
	gaugeT = append(gaugeT, base...)
	gaugeT = append(gaugeT, Translate{Y: PitchOffset(o.Pitch, gauge.Height)})

	return needleT, gaugeT
}
