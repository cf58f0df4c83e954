// Package embedder turns face crops into fixed-length embedding vectors.
package embedder

import (
	"github.com/ayusman/facultyid/internal/vector"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrNoFace signals that the model could not find a face inside the crop.
// Pipelines skip the crop; it is not a failure.
var ErrNoFace = errors.New("no face found in crop")

// Embedder computes an embedding for a single face crop.
type Embedder interface {
	// Embed returns the embedding of the face in crop, or ErrNoFace.
	Embed(crop *gocv.Mat) (vector.Embedding, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Config holds configuration options for the DNN embedder.
type Config struct {
	// ModelPath is the recognition network (e.g. SFace or ArcFace .onnx).
	ModelPath string
	// ConfigPath is the optional network description.
	ConfigPath string
	// InputSize is the square blob size the network expects.
	InputSize int
	// Scale multiplies pixel values after mean subtraction.
	Scale float64
	// Mean is subtracted per channel when building the input blob.
	Mean gocv.Scalar
	// SwapRB converts BGR frames to RGB for networks trained on RGB.
	SwapRB bool
	// MinFaceSize rejects crops narrower or shorter than this many pixels.
	MinFaceSize int
	// CascadePath optionally names a Haar cascade used to confirm that the
	// crop really holds a face before it is embedded.
	CascadePath string
}

// DefaultConfig returns settings for a 112x112 SFace-style network.
func DefaultConfig() Config {
	return Config{
		InputSize:   112,
		Scale:       1.0,
		Mean:        gocv.NewScalar(0, 0, 0, 0),
		SwapRB:      true,
		MinFaceSize: 20,
	}
}
