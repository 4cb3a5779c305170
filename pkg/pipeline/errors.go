package pipeline

import (
	"errors"
	"fmt"
)

// Stage names the step of an iteration that failed.
type Stage string

const (
	StageCapture   Stage = "capture"
	StageDetect    Stage = "detect"
	StageDraw      Stage = "draw"
	StageTransport Stage = "transport"
	StageDisplay   Stage = "display"
)

// ErrMissingCapability is returned by New when a required collaborator is nil.
var ErrMissingCapability = errors.New("pipeline: missing capability")

// FrameError is a failed iteration.
type FrameError struct {
	Stage Stage
	Frame uint64
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %s: %v", e.Frame, e.Stage, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of a FrameError anywhere in err's chain.
func StageOf(err error) (Stage, bool) {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.Stage, true
	}
	return "", false
}
