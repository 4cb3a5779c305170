// Package transport delivers report messages to the downstream consumer.
// Sends are fire-and-forget: no acknowledgement, no retry.
package transport

import (
	"errors"
	"sync"
)

// ErrClosed is returned when sending on a closed transport.
var ErrClosed = errors.New("transport: closed")

// Transport sends one textual message, e.g. "dog:87".
type Transport interface {
	Send(msg string) error
}

// Func adapts a function to Transport.
type Func func(msg string) error

// Send calls f(msg).
func (f Func) Send(msg string) error {
	return f(msg)
}

// Multi sends every message to all transports in order.
// A failing transport does not stop the others; the errors are joined.
type Multi []Transport

// Send delivers msg to each transport.
func (m Multi) Send(msg string) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every message it is sent. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []string
	Err      error
}

// Send records msg, or returns Err when set.
func (r *Recorder) Send(msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}
