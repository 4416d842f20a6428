package params

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a parameter has never been set
var ErrNotFound = errors.New("parameter not found")

// Store provides an interface for the vehicle parameter store. Values are
// JSON documents addressed by slash separated keys.
type Store interface {
	// Get returns the raw JSON value of a parameter.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Parameter key (e.g., "/rospilot/camera/resolution")
	//
	// Returns:
	//   - value: JSON encoded parameter value
	//   - error: ErrNotFound if the parameter was never set, or if retrieval fails
	Get(ctx context.Context, key string) (value string, err error)

	// Set stores the raw JSON value of a parameter, replacing any previous value.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Parameter key
	//   - value: JSON encoded parameter value
	//
	// Returns:
	//   - error: If storing fails or context is cancelled
	Set(ctx context.Context, key, value string) error

	// Keys returns all parameter keys in ascending order.
	Keys(ctx context.Context) ([]string, error)

	// Close releases all resources. It is safe to call Close multiple times.
	Close() error
}
