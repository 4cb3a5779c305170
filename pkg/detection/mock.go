package detection

import (
	"context"
	"sync"

	"github.com/teslashibe/go-piar/pkg/camera"
)

// Mock is a scripted detector for tests and dry runs.
// Each Detect call returns the next scripted result; the last one repeats.
type Mock struct {
	mu     sync.Mutex
	script [][]Detection
	calls  int
	Err    error
	Closed bool
}

// NewMock creates a detector that plays back the given per-frame predictions.
func NewMock(frames ...[]Detection) *Mock {
	return &Mock{script: frames}
}

// Detect returns the next scripted predictions.
func (m *Mock) Detect(ctx context.Context, _ camera.Frame) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.script) == 0 {
		return nil, nil
	}

	i := m.calls - 1
	if i >= len(m.script) {
		i = len(m.script) - 1
	}
	out := make([]Detection, len(m.script[i]))
	copy(out, m.script[i])
	return out, nil
}

// Calls returns how many times Detect was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
