package dashboard

import (
	"context"
	"fmt"
)

// Settings are the camera settings shown to the operator
type Settings struct {
	DetectorEnabled bool     `json:"detectorEnabled"`
	Resolution      string   `json:"resolution"`
	Resolutions     []string `json:"resolutions"`
}

// Settings reads the current camera settings
func (d *Dashboard) Settings(ctx context.Context) (Settings, error) {
	s := Settings{Resolutions: d.binder.Resolutions.Get()}
	if d.camera == nil {
		return s, ErrNoParams
	}

	var err error
	if s.DetectorEnabled, err = d.camera.DetectorEnabled(ctx); err != nil {
		return s, fmt.Errorf("reading detector flag: %w", err)
	}
	if s.Resolution, err = d.camera.Resolution(ctx); err != nil {
		return s, fmt.Errorf("reading resolution: %w", err)
	}
	return s, nil
}

// SetDetectorEnabled turns the object detector on or off
func (d *Dashboard) SetDetectorEnabled(ctx context.Context, enabled bool) error {
	if d.camera == nil {
		return ErrNoParams
	}
	if err := d.camera.SetDetectorEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("storing detector flag: %w", err)
	}
	return nil
}

// SetResolution selects the camera resolution. Empty values are ignored.
func (d *Dashboard) SetResolution(ctx context.Context, resolution string) error {
	if d.camera == nil {
		return ErrNoParams
	}
	if err := d.camera.SetResolution(ctx, resolution); err != nil {
		return fmt.Errorf("storing resolution: %w", err)
	}
	return nil
}

// Resolutions returns the resolution options reported by the camera
func (d *Dashboard) Resolutions() []string {
	return d.binder.Resolutions.Get()
}
