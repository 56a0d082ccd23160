// Package clock provides Clock implementations: the real wall clock and a
// manually advanced fake for deterministic tests.
package clock

import (
	"time"

	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// System is the real wall clock, optionally pinned to a location.
type System struct {
	loc *time.Location
}

// NewSystem returns a wall clock. A nil location means time.Local.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc}
}

// Now returns the current time in the clock's location.
func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

// AfterFunc wraps time.AfterFunc.
func (c *System) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}

// NewTicker wraps time.NewTicker.
func (c *System) NewTicker(d time.Duration) ports.Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

var _ ports.Clock = (*System)(nil)
