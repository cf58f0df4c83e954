package embedder

import (
	"sync"

	"github.com/ayusman/facultyid/internal/vector"
	"gocv.io/x/gocv"
)

// MockEmbedder is a test implementation of the Embedder interface.
// A nil entry in a sequence stands for ErrNoFace.
type MockEmbedder struct {
	mu    sync.Mutex
	fixed vector.Embedding
	seq   []vector.Embedding
	pos   int
	err   error
	calls int
}

// NewMockEmbedder returns an embedder that reports ErrNoFace until configured.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// SetEmbedding makes every Embed call return e.
func (m *MockEmbedder) SetEmbedding(e vector.Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = e
	m.seq = nil
}

// SetSequence makes successive Embed calls return successive entries; once
// exhausted the last entry repeats.
func (m *MockEmbedder) SetSequence(seq []vector.Embedding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq = seq
	m.pos = 0
}

// SetError sets the error that will be returned by Embed.
func (m *MockEmbedder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Embed returns the configured embedding, ErrNoFace, or the configured error.
func (m *MockEmbedder) Embed(crop *gocv.Mat) (vector.Embedding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	var e vector.Embedding
	if len(m.seq) > 0 {
		i := m.pos
		if i >= len(m.seq) {
			i = len(m.seq) - 1
		}
		m.pos++
		e = m.seq[i]
	} else {
		e = m.fixed
	}

	if e == nil {
		return nil, ErrNoFace
	}
	out := make(vector.Embedding, len(e))
	copy(out, e)
	return out, nil
}

// Calls returns how many times Embed ran.
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op for the mock embedder.
func (m *MockEmbedder) Close() error {
	return nil
}
