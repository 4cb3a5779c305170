package report

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-piar/pkg/detection"
)

var (
	dog = detection.Detection{Class: "dog", Confidence: 0.87}
	cat = detection.Detection{Class: "cat", Confidence: 0.846}
)

func TestReport_Message(t *testing.T) {
	tests := []struct {
		det    detection.Detection
		expect string
	}{
		{dog, "dog:87"},
		{cat, "cat:85"},
		{detection.Detection{Class: "person", Confidence: 0.5001}, "person:50"},
	}

	for _, tc := range tests {
		t.Run(tc.expect, func(t *testing.T) {
			if got := New(tc.det).Message(); got != tc.expect {
				t.Errorf("Message: got %q, want %q", got, tc.expect)
			}
		})
	}
}

func TestThrottle_Window(t *testing.T) {
	mock := clock.NewMock()
	th := NewThrottle(time.Second, mock)
	t0 := mock.Now()

	tests := []struct {
		name   string
		offset time.Duration
		expect bool
	}{
		{"first call always reports", 0, true},
		{"inside window", 500 * time.Millisecond, false},
		{"past window", 1500 * time.Millisecond, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := th.TryReport(t0.Add(tc.offset), dog)
			if ok != tc.expect {
				t.Errorf("TryReport at +%v: got %v, want %v", tc.offset, ok, tc.expect)
			}
		})
	}
}

func TestThrottle_StrictBoundary(t *testing.T) {
	th := NewThrottle(time.Second, clock.NewMock())
	t0 := time.Unix(1000, 0)

	th.TryReport(t0, dog)
	if _, ok := th.TryReport(t0.Add(time.Second), dog); ok {
		t.Error("exactly one window later must still be suppressed")
	}
	if _, ok := th.TryReport(t0.Add(time.Second+time.Millisecond), dog); !ok {
		t.Error("just past the window must report")
	}
}

func TestThrottle_GlobalAcrossClasses(t *testing.T) {
	th := NewThrottle(time.Second, nil)
	t0 := time.Unix(1000, 0)

	r, ok := th.TryReport(t0, cat)
	if !ok || r.Class != "cat" {
		t.Fatalf("cat should report first: %v %v", r, ok)
	}
	if _, ok := th.TryReport(t0.Add(200*time.Millisecond), dog); ok {
		t.Error("dog 200ms after cat must be suppressed")
	}
}

func TestThrottle_SuppressedLeavesState(t *testing.T) {
	th := NewThrottle(time.Second, nil)
	t0 := time.Unix(1000, 0)

	th.TryReport(t0, dog)
	th.TryReport(t0.Add(900*time.Millisecond), dog)

	last, ok := th.LastReport()
	if !ok || !last.Equal(t0) {
		t.Errorf("LastReport: got %v (%v), want %v", last, ok, t0)
	}
	// Suppression at +900 must not push the window out
	if _, ok := th.TryReport(t0.Add(1001*time.Millisecond), dog); !ok {
		t.Error("report expected at +1001ms")
	}
}

func TestThrottle_FirstCallAtEpoch(t *testing.T) {
	// The mock clock starts at the Unix epoch; "never" must not be confused with it
	mock := clock.NewMock()
	th := NewThrottle(time.Second, mock)

	if _, ok := th.TryReport(mock.Now(), dog); !ok {
		t.Error("first call must report even at time zero")
	}
}

func TestThrottle_StateAt(t *testing.T) {
	mock := clock.NewMock()
	th := NewThrottle(time.Second, mock)

	if s := th.StateAt(mock.Now()); s != Idle {
		t.Errorf("initial state: got %v, want idle", s)
	}

	th.TryReport(th.Now(), dog)
	mock.Add(400 * time.Millisecond)
	if s := th.StateAt(th.Now()); s != Cooling {
		t.Errorf("after report: got %v, want cooling", s)
	}

	mock.Add(700 * time.Millisecond)
	if s := th.StateAt(th.Now()); s != Idle {
		t.Errorf("after window: got %v, want idle", s)
	}

	th.Reset()
	if _, ok := th.LastReport(); ok {
		t.Error("Reset should forget the last report")
	}
}

func TestThrottle_Monotonic(t *testing.T) {
	th := NewThrottle(time.Second, nil)
	t0 := time.Unix(1000, 0)

	th.TryReport(t0.Add(5*time.Second), dog)
	// A timestamp earlier than the last report counts as inside the window
	if _, ok := th.TryReport(t0, dog); ok {
		t.Error("earlier timestamp should be suppressed")
	}
	if last, _ := th.LastReport(); !last.Equal(t0.Add(5 * time.Second)) {
		t.Errorf("last report moved backwards: %v", last)
	}
}

func TestNewThrottle_Defaults(t *testing.T) {
	th := NewThrottle(0, nil)
	if th.Window() != DefaultWindow {
		t.Errorf("Window: got %v, want %v", th.Window(), DefaultWindow)
	}
	if th.Now().IsZero() {
		t.Error("default clock should be wall time")
	}
}
