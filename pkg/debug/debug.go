// Package debug provides global debug logging flags
package debug

import "github.com/teslashibe/go-piar/internal/log"

// Enabled controls whether debug logging is active
var Enabled bool

// Frames controls whether per-frame logs are shown (raw predictions, suppressed reports).
// These are very verbose at camera frame rate; use --debug-frames to enable them.
var Frames bool

// Log logs a debug message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Debug(msg, args...)
	}
}

// FrameLog logs a debug message only if per-frame debug mode is enabled
func FrameLog(msg string, args ...any) {
	if Frames {
		log.Debug(msg, args...)
	}
}
