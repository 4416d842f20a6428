package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	TopicAttitude    = "attitude"
	TopicIMU         = "imu"
	TopicStatus      = "status"
	TopicWaypoints   = "waypoints"
	TopicResolutions = "camera/resolutions"
	TopicImage       = "camera/image_raw/compressed"
)

// DefaultWaypointAltitude is the altitude in meters used by the "come here" waypoint
const DefaultWaypointAltitude = 5.0

// ErrInvalidSnapshot is returned when a decoded snapshot fails validation
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is implemented by every telemetry value carried over a channel
type Snapshot interface {
	Validate() error
}

// Orientation is the vehicle attitude, all angles are in radians
type Orientation struct {
	Roll  float64 `json:"roll"`  // Roll angle, positive right wing down
	Pitch float64 `json:"pitch"` // Pitch angle, positive nose up
	Yaw   float64 `json:"yaw"`   // Yaw (heading) angle
}

func (o Orientation) Validate() error {
	return finite("orientation", map[string]float64{"roll": o.Roll, "pitch": o.Pitch, "yaw": o.Yaw})
}

// Vector3 is a three-axis sensor reading
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Motion is the raw IMU reading
type Motion struct {
	Gyro  Vector3 `json:"gyro"`  // Angular rates
	Accel Vector3 `json:"accel"` // Linear acceleration
	Mag   Vector3 `json:"mag"`   // Magnetic field
}

func (m Motion) Validate() error {
	return finite("motion", map[string]float64{
		"gyro.x": m.Gyro.X, "gyro.y": m.Gyro.Y, "gyro.z": m.Gyro.Z,
		"accel.x": m.Accel.X, "accel.y": m.Accel.Y, "accel.z": m.Accel.Z,
		"mag.x": m.Mag.X, "mag.y": m.Mag.Y, "mag.z": m.Mag.Z,
	})
}

// Status is the arming state and flight mode reported by the vehicle
type Status struct {
	Armed      bool   `json:"armed"`
	FlightMode string `json:"flight_mode"`
}

func (s Status) Validate() error { return nil }

// StatusCommand is written back to the status channel by the operator
type StatusCommand struct {
	Armed bool `json:"armed"`
}

func (s StatusCommand) Validate() error { return nil }

// Waypoint is a single navigation target
type Waypoint struct {
	Latitude  float64 `json:"latitude"`  // Degrees
	Longitude float64 `json:"longitude"` // Degrees
	Altitude  float64 `json:"altitude"`  // Meters
}

// Waypoints is the payload of the waypoints channel
type Waypoints struct {
	Waypoints []Waypoint `json:"waypoints"`
}

func (w Waypoints) Validate() error {
	for i, wp := range w.Waypoints {
		if err := (Position{Latitude: wp.Latitude, Longitude: wp.Longitude}).Validate(); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
		if math.IsNaN(wp.Altitude) || math.IsInf(wp.Altitude, 0) {
			return fmt.Errorf("%w: waypoint %d: altitude is not finite", ErrInvalidSnapshot, i)
		}
	}
	return nil
}

// CompressedImage is an encoded camera frame. Data is base64 on the wire.
type CompressedImage struct {
	Format string `json:"format"` // jpeg or png
	Data   []byte `json:"data"`
}

func (c CompressedImage) Validate() error {
	if len(c.Data) == 0 {
		return fmt.Errorf("%w: empty image", ErrInvalidSnapshot)
	}
	return nil
}

// Resolution is a camera frame size in pixels
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Resolution) String() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// Resolutions is the list of frame sizes the camera supports
type Resolutions struct {
	Resolutions []Resolution `json:"resolutions"`
}

func (r Resolutions) Validate() error {
	for _, res := range r.Resolutions {
		if res.Width <= 0 || res.Height <= 0 {
			return fmt.Errorf("%w: resolution %s", ErrInvalidSnapshot, res)
		}
	}
	return nil
}

// Options returns resolutions formatted as "WIDTHxHEIGHT" strings
func (r Resolutions) Options() []string {
	options := make([]string, len(r.Resolutions))
	for i, res := range r.Resolutions {
		options[i] = res.String()
	}
	return options
}

// Decode unmarshals a JSON payload into a snapshot and validates its shape
func Decode[T Snapshot](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if err := v.Validate(); err != nil {
		return v, err
	}
	return v, nil
}

func finite(kind string, values map[string]float64) error {
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s.%s is not finite", ErrInvalidSnapshot, kind, name)
		}
	}
	return nil
}
