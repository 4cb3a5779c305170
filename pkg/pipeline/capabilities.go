package pipeline

import (
	"context"
	"time"

	"github.com/teslashibe/go-piar/pkg/annotate"
	"github.com/teslashibe/go-piar/pkg/camera"
	"github.com/teslashibe/go-piar/pkg/detection"
)

// FrameSource yields the most recent frame.
type FrameSource interface {
	Capture(ctx context.Context) (camera.Frame, error)
}

// Detector runs the model on a frame.
type Detector interface {
	Detect(ctx context.Context, frame camera.Frame) ([]detection.Detection, error)
}

// Sink is the presentation surface.
type Sink interface {
	Draw(cmds []annotate.DrawCommand) error
}

// Presenter is implemented by sinks that publish a finished picture once per frame.
type Presenter interface {
	Present() error
}

// Transport sends a report message to the consumer.
type Transport interface {
	Send(msg string) error
}

// Display shows the current label and score.
type Display interface {
	Display(label, score string) error
}

// Scheduler blocks until the next iteration may start.
type Scheduler interface {
	NextFrame(ctx context.Context) error
}

// Observer receives per-frame statistics. *metrics.Metrics implements it.
type Observer interface {
	FrameProcessed(relevantClasses []string)
	ReportSent(class string)
	ReportSuppressed()
	FrameFailed(stage string)
	DetectDuration(d time.Duration)
}

// Capabilities are the collaborators a Loop drives.
// Sink and Scheduler are optional.
type Capabilities struct {
	Source    FrameSource
	Detector  Detector
	Sink      Sink
	Transport Transport
	Display   Display
	Scheduler Scheduler
}

type nopObserver struct{}

func (nopObserver) FrameProcessed([]string)      {}
func (nopObserver) ReportSent(string)            {}
func (nopObserver) ReportSuppressed()            {}
func (nopObserver) FrameFailed(string)           {}
func (nopObserver) DetectDuration(time.Duration) {}
