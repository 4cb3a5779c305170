// Package pipeline drives the per-frame detection loop: capture, detect,
// filter, annotate, select, throttle and report.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-piar/internal/log"
	"github.com/teslashibe/go-piar/pkg/annotate"
	"github.com/teslashibe/go-piar/pkg/debug"
	"github.com/teslashibe/go-piar/pkg/detection"
	"github.com/teslashibe/go-piar/pkg/report"
)

// Placeholder is shown on the display when nothing relevant is in view.
const Placeholder = "--"

// ErrorHandler decides what happens after a failed iteration.
// Returning nil continues with the next frame; returning an error stops Run.
type ErrorHandler func(err error) error

// Option configures a Loop.
type Option func(*Loop)

// WithFilter replaces the default relevance filter.
func WithFilter(f detection.Filter) Option {
	return func(l *Loop) { l.filter = f }
}

// WithSelector replaces SelectFirst.
func WithSelector(s detection.Selector) Option {
	return func(l *Loop) { l.selector = s }
}

// WithThrottle replaces the default one-second throttle.
func WithThrottle(t *report.Throttle) Option {
	return func(l *Loop) { l.throttle = t }
}

// WithClock sets the time source used for throttling and latency.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithObserver receives per-frame statistics.
func WithObserver(o Observer) Option {
	return func(l *Loop) { l.observer = o }
}

// WithErrorHandler lets the host catch failed iterations and reschedule.
func WithErrorHandler(h ErrorHandler) Option {
	return func(l *Loop) { l.onError = h }
}

// WithReportHook is called after every report that reached the transport.
func WithReportHook(fn func(report.Report)) Option {
	return func(l *Loop) { l.onReport = fn }
}

// Outcome summarizes one iteration.
type Outcome struct {
	Frame       uint64
	Predictions int
	Relevant    []detection.Detection
	Report      report.Report
	Reported    bool
	Suppressed  bool
}

// Loop is the detection loop. One iteration runs at a time; the loop goroutine
// is the only writer of the throttle state.
type Loop struct {
	caps Capabilities

	filter   detection.Filter
	selector detection.Selector
	throttle *report.Throttle
	clock    clock.Clock
	observer Observer
	onError  ErrorHandler
	onReport func(report.Report)

	log *slog.Logger
}

// New creates a loop over the given capabilities.
func New(caps Capabilities, opts ...Option) (*Loop, error) {
	switch {
	case caps.Source == nil:
		return nil, fmt.Errorf("%w: frame source", ErrMissingCapability)
	case caps.Detector == nil:
		return nil, fmt.Errorf("%w: detector", ErrMissingCapability)
	case caps.Transport == nil:
		return nil, fmt.Errorf("%w: transport", ErrMissingCapability)
	case caps.Display == nil:
		return nil, fmt.Errorf("%w: display", ErrMissingCapability)
	}
	if caps.Scheduler == nil {
		caps.Scheduler = Immediate{}
	}

	l := &Loop{
		caps:     caps,
		filter:   detection.DefaultFilter(),
		selector: detection.SelectFirst,
		observer: nopObserver{},
		log:      log.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.clock == nil {
		l.clock = clock.New()
	}
	if l.throttle == nil {
		l.throttle = report.NewThrottle(report.DefaultWindow, l.clock)
	}
	return l, nil
}

// Throttle returns the loop's report throttle.
func (l *Loop) Throttle() *report.Throttle {
	return l.throttle
}

// Step runs one iteration. Failures are returned as *FrameError.
func (l *Loop) Step(ctx context.Context) (Outcome, error) {
	var out Outcome

	frame, err := l.caps.Source.Capture(ctx)
	if err != nil {
		return out, l.fail(StageCapture, 0, err)
	}
	out.Frame = frame.Seq

	start := l.clock.Now()
	predictions, err := l.caps.Detector.Detect(ctx, frame)
	if err != nil {
		return out, l.fail(StageDetect, frame.Seq, err)
	}
	l.observer.DetectDuration(l.clock.Since(start))
	out.Predictions = len(predictions)

	if err := l.draw(annotate.Base(frame)); err != nil {
		return out, l.fail(StageDraw, frame.Seq, err)
	}

	relevant := l.filter.Apply(predictions)
	out.Relevant = relevant

	if err := l.draw(annotate.Annotate(relevant)); err != nil {
		return out, l.fail(StageDraw, frame.Seq, err)
	}
	if p, ok := l.caps.Sink.(Presenter); ok {
		if err := p.Present(); err != nil {
			return out, l.fail(StageDraw, frame.Seq, err)
		}
	}

	if chosen, ok := l.selector(relevant); ok {
		rep, sent := l.throttle.TryReport(l.clock.Now(), chosen)
		if sent {
			if err := l.caps.Transport.Send(rep.Message()); err != nil {
				return out, l.fail(StageTransport, frame.Seq, err)
			}
			out.Report, out.Reported = rep, true
			l.observer.ReportSent(rep.Class)
			if l.onReport != nil {
				l.onReport(rep)
			}

			if err := l.caps.Display.Display(rep.Class, strconv.Itoa(rep.Percent)); err != nil {
				return out, l.fail(StageDisplay, frame.Seq, err)
			}
			l.log.Info("report sent", "message", rep.Message(), "frame", frame.Seq)
		} else {
			out.Suppressed = true
			l.observer.ReportSuppressed()
			debug.FrameLog("report suppressed", "class", chosen.Class, "frame", frame.Seq)
		}
	}

	if len(relevant) == 0 {
		if err := l.caps.Display.Display(Placeholder, Placeholder); err != nil {
			return out, l.fail(StageDisplay, frame.Seq, err)
		}
	}

	classes := make([]string, len(relevant))
	for i, d := range relevant {
		classes[i] = d.Class
	}
	l.observer.FrameProcessed(classes)

	debug.FrameLog("frame processed",
		"frame", frame.Seq,
		"predictions", len(predictions),
		"relevant", len(relevant),
	)

	return out, nil
}

func (l *Loop) draw(cmds []annotate.DrawCommand) error {
	if l.caps.Sink == nil || len(cmds) == 0 {
		return nil
	}
	return l.caps.Sink.Draw(cmds)
}

func (l *Loop) fail(stage Stage, frame uint64, err error) error {
	l.observer.FrameFailed(string(stage))
	return &FrameError{Stage: stage, Frame: frame, Err: err}
}

// Run iterates until ctx is done or an iteration fails without an error handler
// to absorb it.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("detection loop started",
		"threshold", l.filter.Threshold,
		"window", l.throttle.Window(),
	)
	defer l.log.Info("detection loop stopped")

	for {
		if _, err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if l.onError == nil {
				return err
			}
			if herr := l.onError(err); herr != nil {
				return herr
			}
		}

		if err := l.caps.Scheduler.NextFrame(ctx); err != nil {
			return err
		}
	}
}
