package detector

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	boxes []image.Rectangle
	seq   [][]image.Rectangle
	pos   int
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetBoxes sets the boxes returned by every Detect call.
func (m *MockDetector) SetBoxes(boxes []image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes = boxes
	m.seq = nil
}

// SetSequence makes successive Detect calls return successive entries; once
// exhausted the last entry repeats.
func (m *MockDetector) SetSequence(seq [][]image.Rectangle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = seq
	m.pos = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured boxes or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]image.Rectangle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.seq) > 0 {
		i := m.pos
		if i >= len(m.seq) {
			i = len(m.seq) - 1
		}
		m.pos++
		return m.seq[i], nil
	}
	return m.boxes, nil
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
