package detection

import "errors"

// Sentinel errors for detection backends.
var (
	// ErrModelNotFound is returned when the model file does not exist.
	ErrModelNotFound = errors.New("detection: model file not found")

	// ErrEmptyImage is returned when a frame decodes to nothing.
	ErrEmptyImage = errors.New("detection: empty image")

	// ErrBadResponse is returned when a remote model answers with something unparseable.
	ErrBadResponse = errors.New("detection: unparseable model response")
)
