package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-piar/pkg/annotate"
	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/detection"
	"github.com/teslashibe/go-piar/pkg/metrics"
	"github.com/teslashibe/go-piar/pkg/report"
	"github.com/teslashibe/go-piar/pkg/transport"
)

// Test doubles

type fakeSource struct {
	mu  sync.Mutex
	seq uint64
	err error
}

func (s *fakeSource) Capture(ctx context.Context) (camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return camera.Frame{}, s.err
	}
	s.seq++
	return camera.Frame{Seq: s.seq, Width: 640, Height: 480}, nil
}

type recordingSink struct {
	cmds     []annotate.DrawCommand
	presents int
	err      error
}

func (s *recordingSink) Draw(cmds []annotate.DrawCommand) error {
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmds...)
	return nil
}

func (s *recordingSink) Present() error {
	s.presents++
	return nil
}

func (s *recordingSink) kinds() []annotate.Kind {
	out := make([]annotate.Kind, len(s.cmds))
	for i, c := range s.cmds {
		out[i] = c.Kind
	}
	return out
}

type displayCall struct{ label, score string }

type recordingDisplay struct {
	calls []displayCall
}

func (d *recordingDisplay) Display(label, score string) error {
	d.calls = append(d.calls, displayCall{label, score})
	return nil
}

// stepScheduler advances the mock clock each frame and stops after n frames.
type stepScheduler struct {
	mock     *clock.Mock
	interval time.Duration
	n        int
	cancel   context.CancelFunc
}

func (s *stepScheduler) NextFrame(ctx context.Context) error {
	s.n--
	if s.n <= 0 {
		s.cancel()
		return ctx.Err()
	}
	s.mock.Add(s.interval)
	return nil
}

type harness struct {
	loop      *Loop
	mock      *clock.Mock
	source    *fakeSource
	detector  *detection.Mock
	sink      *recordingSink
	transport *transport.Recorder
	display   *recordingDisplay
	metrics   *metrics.Metrics
}

func newHarness(t *testing.T, script [][]detection.Detection, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		mock:      clock.NewMock(),
		source:    &fakeSource{},
		detector:  detection.NewMock(script...),
		sink:      &recordingSink{},
		transport: &transport.Recorder{},
		display:   &recordingDisplay{},
		metrics:   metrics.New(),
	}
	h.mock.Set(time.Unix(1_700_000_000, 0))

	opts = append([]Option{WithClock(h.mock), WithObserver(h.metrics)}, opts...)
	loop, err := New(Capabilities{
		Source:    h.source,
		Detector:  h.detector,
		Sink:      h.sink,
		Transport: h.transport,
		Display:   h.display,
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.loop = loop
	return h
}

var (
	dog    = detection.Detection{Class: "dog", Confidence: 0.87, Box: detection.Box{X: 10, Y: 10, W: 100, H: 100}}
	car    = detection.Detection{Class: "car", Confidence: 0.9, Box: detection.Box{X: 0, Y: 0, W: 5, H: 5}}
	cat    = detection.Detection{Class: "cat", Confidence: 0.7, Box: detection.Box{X: 300, Y: 200, W: 80, H: 60}}
	weakly = detection.Detection{Class: "person", Confidence: 0.4}
)

func TestStep_DogAndCar(t *testing.T) {
	h := newHarness(t, [][]detection.Detection{{dog, car}})

	out, err := h.loop.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	if !reflect.DeepEqual(out.Relevant, []detection.Detection{dog}) {
		t.Errorf("relevant: got %v", out.Relevant)
	}
	if !out.Reported || out.Report.Message() != "dog:87" {
		t.Errorf("report: got %+v", out)
	}
	if got := h.transport.Messages(); !reflect.DeepEqual(got, []string{"dog:87"}) {
		t.Errorf("transport: got %v", got)
	}
	if want := []displayCall{{"dog", "87"}}; !reflect.DeepEqual(h.display.calls, want) {
		t.Errorf("display: got %v, want %v", h.display.calls, want)
	}

	want := []annotate.Kind{annotate.Clear, annotate.DrawImage, annotate.StrokeRect, annotate.FillText}
	if got := h.sink.kinds(); !reflect.DeepEqual(got, want) {
		t.Errorf("draw commands: got %v, want %v", got, want)
	}
	for _, c := range h.sink.cmds {
		if c.Kind == annotate.FillText && c.Text != "dog (87%)" {
			t.Errorf("label: got %q", c.Text)
		}
		if c.Kind == annotate.StrokeRect && c.Box != dog.Box {
			t.Errorf("car must never be drawn, got box %+v", c.Box)
		}
	}
	if h.sink.presents != 1 {
		t.Errorf("presents: got %d, want 1", h.sink.presents)
	}
}

func TestRun_EmptyFramesResetDisplay(t *testing.T) {
	h := newHarness(t, [][]detection.Detection{{weakly, car}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.loop.caps.Scheduler = &stepScheduler{mock: h.mock, interval: 66 * time.Millisecond, n: 5, cancel: cancel}

	if err := h.loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got %v, want context.Canceled", err)
	}

	if h.detector.Calls() != 5 {
		t.Fatalf("frames: got %d, want 5", h.detector.Calls())
	}
	if len(h.display.calls) != 5 {
		t.Fatalf("display calls: got %d, want 5", len(h.display.calls))
	}
	for i, c := range h.display.calls {
		if c != (displayCall{Placeholder, Placeholder}) {
			t.Errorf("frame %d display: got %v", i+1, c)
		}
	}
	if len(h.transport.Messages()) != 0 {
		t.Errorf("nothing should be sent, got %v", h.transport.Messages())
	}
}

func TestRun_ThrottlesAcrossFrames(t *testing.T) {
	// 15 frames at 100 ms with a dog always in view: reports at 0 ms and 1100 ms
	h := newHarness(t, [][]detection.Detection{{dog}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.loop.caps.Scheduler = &stepScheduler{mock: h.mock, interval: 100 * time.Millisecond, n: 15, cancel: cancel}

	h.loop.Run(ctx)

	if got := h.transport.Messages(); !reflect.DeepEqual(got, []string{"dog:87", "dog:87"}) {
		t.Errorf("transport: got %v", got)
	}
	// Display is only updated on reports while something is in view
	if len(h.display.calls) != 2 {
		t.Errorf("display calls: got %d, want 2", len(h.display.calls))
	}
	// Every frame still draws the annotation
	rects := 0
	for _, c := range h.sink.cmds {
		if c.Kind == annotate.StrokeRect {
			rects++
		}
	}
	if rects != 15 {
		t.Errorf("rectangles drawn: got %d, want 15", rects)
	}
}

func TestStep_ThrottleIsGlobal(t *testing.T) {
	h := newHarness(t, [][]detection.Detection{{cat}, {dog}, {dog}})
	ctx := context.Background()

	out, _ := h.loop.Step(ctx)
	if !out.Reported || out.Report.Class != "cat" {
		t.Fatalf("first frame should report cat: %+v", out)
	}

	h.mock.Add(200 * time.Millisecond)
	out, _ = h.loop.Step(ctx)
	if out.Reported || !out.Suppressed {
		t.Errorf("dog at +200ms should be suppressed: %+v", out)
	}

	h.mock.Add(900 * time.Millisecond)
	out, _ = h.loop.Step(ctx)
	if !out.Reported || out.Report.Class != "dog" {
		t.Errorf("dog at +1100ms should report: %+v", out)
	}
}

func TestStep_SelectsFirstByDefault(t *testing.T) {
	strongDog := dog
	strongDog.Confidence = 0.99
	h := newHarness(t, [][]detection.Detection{{cat, strongDog}})

	out, _ := h.loop.Step(context.Background())
	if out.Report.Class != "cat" {
		t.Errorf("default policy: got %s, want cat", out.Report.Class)
	}

	h = newHarness(t, [][]detection.Detection{{cat, strongDog}}, WithSelector(detection.SelectBest))
	out, _ = h.loop.Step(context.Background())
	if out.Report.Class != "dog" {
		t.Errorf("best policy: got %s, want dog", out.Report.Class)
	}
}

func TestStep_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		setup func(h *harness)
		stage Stage
		sends int
	}{
		{"capture", func(h *harness) { h.source.err = camera.ErrNoFrame }, StageCapture, 0},
		{"detect", func(h *harness) { h.detector.Err = boom }, StageDetect, 0},
		{"draw", func(h *harness) { h.sink.err = boom }, StageDraw, 0},
		{"transport", func(h *harness) { h.transport.Err = boom }, StageTransport, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, [][]detection.Detection{{dog}})
			tc.setup(h)

			_, err := h.loop.Step(context.Background())
			var fe *FrameError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FrameError, got %v", err)
			}
			if fe.Stage != tc.stage {
				t.Errorf("stage: got %s, want %s", fe.Stage, tc.stage)
			}
			if stage, ok := StageOf(err); !ok || stage != tc.stage {
				t.Errorf("StageOf: got %s %v", stage, ok)
			}
			if len(h.transport.Messages()) != tc.sends {
				t.Errorf("sends: got %d", len(h.transport.Messages()))
			}
		})
	}
}

func TestRun_ErrorPropagates(t *testing.T) {
	h := newHarness(t, [][]detection.Detection{{dog}})
	h.detector.Err = errors.New("model crashed")

	err := h.loop.Run(context.Background())
	if stage, _ := StageOf(err); stage != StageDetect {
		t.Errorf("Run: got %v, want detect failure", err)
	}
	if h.detector.Calls() != 1 {
		t.Errorf("loop should halt after the first failure, ran %d frames", h.detector.Calls())
	}
}

func TestRun_ErrorHandlerReschedules(t *testing.T) {
	var handled []error
	h := newHarness(t, [][]detection.Detection{{dog}}, WithErrorHandler(func(err error) error {
		handled = append(handled, err)
		return nil
	}))
	h.source.err = camera.ErrNoFrame

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.loop.caps.Scheduler = &stepScheduler{mock: h.mock, interval: time.Second, n: 3, cancel: cancel}

	if err := h.loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run: got %v", err)
	}
	if len(handled) != 3 {
		t.Errorf("handled errors: got %d, want 3", len(handled))
	}
	if !errors.Is(handled[0], camera.ErrNoFrame) {
		t.Errorf("handler should see the cause: %v", handled[0])
	}
}

func TestRun_ReportHook(t *testing.T) {
	var hooked []report.Report
	h := newHarness(t, [][]detection.Detection{{dog}}, WithReportHook(func(r report.Report) {
		hooked = append(hooked, r)
	}))

	h.loop.Step(context.Background())
	if len(hooked) != 1 || hooked[0].Message() != "dog:87" {
		t.Errorf("hook: got %v", hooked)
	}
}

func TestNew_MissingCapabilities(t *testing.T) {
	full := Capabilities{
		Source:    &fakeSource{},
		Detector:  detection.NewMock(),
		Transport: &transport.Recorder{},
		Display:   &recordingDisplay{},
	}

	tests := []struct {
		name   string
		mutate func(*Capabilities)
	}{
		{"source", func(c *Capabilities) { c.Source = nil }},
		{"detector", func(c *Capabilities) { c.Detector = nil }},
		{"transport", func(c *Capabilities) { c.Transport = nil }},
		{"display", func(c *Capabilities) { c.Display = nil }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			caps := full
			tc.mutate(&caps)
			if _, err := New(caps); !errors.Is(err, ErrMissingCapability) {
				t.Errorf("got %v, want ErrMissingCapability", err)
			}
		})
	}

	if _, err := New(full); err != nil {
		t.Errorf("sink and scheduler are optional: %v", err)
	}
}

func TestTickerScheduler(t *testing.T) {
	mock := clock.NewMock()
	s := NewTickerScheduler(mock, 100*time.Millisecond)
	defer s.Stop()

	done := make(chan error, 1)
	go func() { done <- s.NextFrame(context.Background()) }()

	// Give the goroutine a chance to block on the ticker
	time.Sleep(10 * time.Millisecond)
	mock.Add(100 * time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("NextFrame: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("NextFrame did not return after a tick")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.NextFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled NextFrame: got %v", err)
	}
}
