package params

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Camera parameter keys
const (
	KeyDetectorEnabled = "/rospilot/camera/detector_enabled"
	KeyResolution      = "/rospilot/camera/resolution"
)

// Camera reads and writes the camera settings held in a parameter store
type Camera struct {
	store Store
}

func NewCamera(store Store) *Camera {
	return &Camera{store: store}
}

// DetectorEnabled reports whether the object detector is on. An unset
// parameter reads as false.
func (c *Camera) DetectorEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if err := c.get(ctx, KeyDetectorEnabled, &enabled); err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return enabled, nil
}

func (c *Camera) SetDetectorEnabled(ctx context.Context, enabled bool) error {
	return c.set(ctx, KeyDetectorEnabled, enabled)
}

// Resolution returns the selected "WIDTHxHEIGHT" resolution, empty if unset
func (c *Camera) Resolution(ctx context.Context) (string, error) {
	var resolution string
	if err := c.get(ctx, KeyResolution, &resolution); err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return resolution, nil
}

// SetResolution stores the selected resolution. Empty values are ignored.
func (c *Camera) SetResolution(ctx context.Context, resolution string) error {
	if resolution == "" {
		return nil
	}
	return c.set(ctx, KeyResolution, resolution)
}

func (c *Camera) get(ctx context.Context, key string, v any) error {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err = json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decoding parameter %s: %w", key, err)
	}
	return nil
}

func (c *Camera) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding parameter %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(raw))
}
