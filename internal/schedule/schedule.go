// Package schedule drives fixed-interval work from a Clock so that tests can
// advance time by hand instead of sleeping.
package schedule

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock is the time source for collection, transmission and rendering.
// Tests pass a clockwork.FakeClock.
type Clock = clockwork.Clock

// Ticker delivers ticks on Chan until stopped.
type Ticker = clockwork.Ticker

// Real returns the wall clock.
func Real() Clock { return clockwork.NewRealClock() }

// Every calls fn on each tick of interval until ctx is done. When immediate
// is set fn also runs once before the first tick.
func Every(ctx context.Context, clock Clock, interval time.Duration, immediate bool, fn func(now time.Time)) {
	if immediate {
		fn(clock.Now())
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.Chan():
			fn(t)
		}
	}
}
