package geo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// Static always reports the same position
type Static struct {
	Position telemetry.Position
}

func (s Static) CurrentPosition(ctx context.Context) (telemetry.Position, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Position{}, err
	}
	return s.Position, nil
}

// Reported holds the last position reported by the operator's browser.
// Positions older than the maximum age are not returned.
type Reported struct {
	maxAge time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	position   telemetry.Position
	reportedAt time.Time
}

// NewReported creates an empty locator. A zero maxAge never expires positions.
func NewReported(maxAge time.Duration) *Reported {
	return &Reported{maxAge: maxAge, now: time.Now}
}

// Report records the operator position
func (r *Reported) Report(p telemetry.Position) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("reporting position: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.position = p
	r.reportedAt = r.now()
	return nil
}

func (r *Reported) CurrentPosition(ctx context.Context) (telemetry.Position, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Position{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.reportedAt.IsZero() {
		return telemetry.Position{}, telemetry.ErrNoPosition
	}
	if r.maxAge > 0 && r.now().Sub(r.reportedAt) > r.maxAge {
		return telemetry.Position{}, fmt.Errorf("%w: last report is too old", telemetry.ErrNoPosition)
	}
	return r.position, nil
}

// Chain asks each locator in turn and returns the first position found
type Chain []telemetry.Locator

func (c Chain) CurrentPosition(ctx context.Context) (telemetry.Position, error) {
	for _, l := range c {
		if p, err := l.CurrentPosition(ctx); err == nil {
			return p, nil
		}
	}
	return telemetry.Position{}, telemetry.ErrNoPosition
}
