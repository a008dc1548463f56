// Package timer runs the streaming pipeline's free-running tick source: a
// fixed-period loop that feeds internal/acquisition.Controller over a
// bounded, capacity-1 channel, grounded on the ticker+select loop shape of
// internal/metricstore/metricstore.go's buffer-freeing goroutine.
package timer

import (
	"context"
	"time"
)

// DefaultPeriod is the tick period used when none is configured.
const DefaultPeriod = 10 * time.Millisecond

// Timer emits an empty struct on Ticks at a fixed period until ctx is
// canceled. Ticks has capacity 1: a tick that can't be delivered because
// the consumer hasn't drained the previous one is dropped rather than
// queued, so the consumer is never handed a backlog.
type Timer struct {
	period time.Duration
	ticks  chan struct{}
}

// New creates a Timer with the given period. A non-positive period falls
// back to DefaultPeriod.
func New(period time.Duration) *Timer {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Timer{period: period, ticks: make(chan struct{}, 1)}
}

// Ticks returns the channel ticks are delivered on.
func (t *Timer) Ticks() <-chan struct{} {
	return t.ticks
}

// Run blocks, sending a tick every period until ctx is canceled. It returns
// when ctx is done; it never closes Ticks, since a consumer still draining
// a last tick should not see ok-false.
func (t *Timer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case t.ticks <- struct{}{}:
			default:
				// consumer still behind on the previous tick; drop this one
			}
		}
	}
}
