package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNoPosition is returned by a Locator that has no position to report
var ErrNoPosition = errors.New("position unavailable")

// Position is a geographic location in degrees
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate rejects coordinates outside the WGS84 ranges, NaN included
func (p Position) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidSnapshot, p.Latitude)
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidSnapshot, p.Longitude)
	}
	return nil
}

// Locator is a one-shot geolocation provider
type Locator interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// ComeHere builds the single-waypoint list sent when the operator calls the
// vehicle to their position
func ComeHere(p Position) Waypoints {
	return Waypoints{
		Waypoints: []Waypoint{{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Altitude:  DefaultWaypointAltitude,
		}},
	}
}
