package embedder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/facultyid/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestMockEmbedder(t *testing.T) {
	m := NewMockEmbedder()
	crop := gocv.NewMatWithSize(112, 112, gocv.MatTypeCV8UC3)
	defer crop.Close()

	_, err := m.Embed(&crop)
	assert.ErrorIs(t, err, ErrNoFace, "unconfigured mock reports no face")

	m.SetEmbedding(vector.Embedding{1, 2})
	got, err := m.Embed(&crop)
	require.NoError(t, err)
	assert.Equal(t, vector.Embedding{1, 2}, got)

	got[0] = 99
	again, _ := m.Embed(&crop)
	assert.Equal(t, vector.Embedding{1, 2}, again, "callers must not alias the fixture")

	m.SetSequence([]vector.Embedding{nil, {3, 4}})
	_, err = m.Embed(&crop)
	assert.ErrorIs(t, err, ErrNoFace)
	got, err = m.Embed(&crop)
	require.NoError(t, err)
	assert.Equal(t, vector.Embedding{3, 4}, got)
	got, err = m.Embed(&crop)
	require.NoError(t, err)
	assert.Equal(t, vector.Embedding{3, 4}, got)

	boom := errors.New("inference failed")
	m.SetError(boom)
	_, err = m.Embed(&crop)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 7, m.Calls())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 112, cfg.InputSize)
	assert.Equal(t, 20, cfg.MinFaceSize)
	assert.Empty(t, cfg.CascadePath)
}

func TestNewDNNEmbedder_MissingModel(t *testing.T) {
	cfg := DefaultConfig()

	_, err := NewDNNEmbedder(cfg)
	assert.Error(t, err)

	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, err = NewDNNEmbedder(cfg)
	assert.Error(t, err)
}

func TestDNNEmbedder_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	model := os.Getenv("FACULTYID_EMBEDDER_MODEL")
	if model == "" {
		t.Skip("FACULTYID_EMBEDDER_MODEL not set")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = model
	e, err := NewDNNEmbedder(cfg)
	require.NoError(t, err)
	defer e.Close()

	tiny := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC3)
	defer tiny.Close()
	_, err = e.Embed(&tiny)
	assert.ErrorIs(t, err, ErrNoFace)

	crop := gocv.NewMatWithSize(112, 112, gocv.MatTypeCV8UC3)
	defer crop.Close()
	first, err := e.Embed(&crop)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := e.Embed(&crop)
	require.NoError(t, err)
	assert.Len(t, second, len(first), "embedding dimensionality is fixed")
}
