package chart

import "time"

// DefaultRedrawInterval is the minimum time between two chart redraws
const DefaultRedrawInterval = 500 * time.Millisecond

// RedrawClock rate-limits chart redraws. A redraw is accepted only when
// strictly more than the interval has elapsed since the last accepted one.
// The zero clock has never redrawn, so its first decision is always true.
type RedrawClock struct {
	interval time.Duration
	last     time.Time
}

// NewRedrawClock creates a clock with the given interval, or the default one
// when interval is not positive
func NewRedrawClock(interval time.Duration) *RedrawClock {
	if interval <= 0 {
		interval = DefaultRedrawInterval
	}
	return &RedrawClock{interval: interval}
}

// ShouldRedraw decides whether a sample arriving at now triggers a redraw.
// The last redraw time advances only when the answer is true.
func (c *RedrawClock) ShouldRedraw(now time.Time) bool {
	if c.interval <= 0 {
		c.interval = DefaultRedrawInterval
	}
	if !c.last.IsZero() && now.Sub(c.last) <= c.interval {
		return false
	}
	c.last = now
	return true
}

// Last returns the time of the last accepted redraw
func (c *RedrawClock) Last() time.Time {
	return c.last
}

func (c *RedrawClock) Interval() time.Duration {
	return c.interval
}
