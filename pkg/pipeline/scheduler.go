package pipeline

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// TickerScheduler paces iterations at a fixed frame interval.
// Ticks that fire while an iteration runs are dropped, never queued.
type TickerScheduler struct {
	ticker *clock.Ticker
}

// NewTickerScheduler creates a scheduler ticking every interval on clk.
func NewTickerScheduler(clk clock.Clock, interval time.Duration) *TickerScheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &TickerScheduler{ticker: clk.Ticker(interval)}
}

// NextFrame waits for the next tick.
func (s *TickerScheduler) NextFrame(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ticker.C:
		return nil
	}
}

// Stop releases the ticker.
func (s *TickerScheduler) Stop() {
	s.ticker.Stop()
}

// Immediate starts the next iteration as soon as the previous one finishes.
type Immediate struct{}

// NextFrame returns at once unless ctx is done.
func (Immediate) NextFrame(ctx context.Context) error {
	return ctx.Err()
}
