// Package report turns the selected detection into a rate-limited report
// for the downstream consumer.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-piar/pkg/detection"
)

// DefaultWindow is the minimum spacing between two reports.
const DefaultWindow = time.Second

// Report is the summary sent to the consumer.
type Report struct {
	Class   string `json:"class"`
	Percent int    `json:"percent"`
}

// New builds a report from a detection.
func New(d detection.Detection) Report {
	return Report{Class: d.Class, Percent: d.Percent()}
}

// Message formats the report for the wire: "<class>:<percent>".
func (r Report) Message() string {
	return fmt.Sprintf("%s:%d", r.Class, r.Percent)
}

// State is the throttle state at a point in time.
type State int

const (
	// Idle means the next candidate will be reported.
	Idle State = iota
	// Cooling means a report went out within the window.
	Cooling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Cooling:
		return "cooling"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Throttle allows at most one report per window, across all classes.
// A report is allowed once strictly more than Window has passed since the last one.
type Throttle struct {
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	last    time.Time
	hasLast bool
}

// NewThrottle creates a throttle. A nil clock means wall time; a non-positive
// window means DefaultWindow.
func NewThrottle(window time.Duration, clk clock.Clock) *Throttle {
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Throttle{window: window, clock: clk}
}

// Window returns the configured window.
func (t *Throttle) Window() time.Duration {
	return t.window
}

// Now returns the current time of the throttle's clock.
func (t *Throttle) Now() time.Time {
	return t.clock.Now()
}

// TryReport emits a report for candidate when the throttle is idle at now.
// When suppressed, the state is left untouched.
func (t *Throttle) TryReport(now time.Time, candidate detection.Detection) (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stateLocked(now) == Cooling {
		return Report{}, false
	}

	// Never move the timestamp backwards
	if !t.hasLast || now.After(t.last) {
		t.last = now
	}
	t.hasLast = true
	return New(candidate), true
}

// StateAt returns the throttle state as seen at now.
func (t *Throttle) StateAt(now time.Time) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked(now)
}

func (t *Throttle) stateLocked(now time.Time) State {
	if !t.hasLast || now.Sub(t.last) > t.window {
		return Idle
	}
	return Cooling
}

// LastReport returns the time of the last report, and false if there was none.
func (t *Throttle) LastReport() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Reset forgets the last report.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
	t.hasLast = false
}
