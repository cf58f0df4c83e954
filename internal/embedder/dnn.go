package embedder

import (
	"image"
	"os"
	"sync"

	"github.com/ayusman/facultyid/internal/vector"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// DNNEmbedder runs a face recognition network through OpenCV DNN.
type DNNEmbedder struct {
	config  Config
	net     gocv.Net
	cascade *gocv.CascadeClassifier
	mu      sync.Mutex
}

// NewDNNEmbedder loads the network and, when configured, the verification
// cascade. Any load failure is returned; callers treat it as fatal.
func NewDNNEmbedder(config Config) (*DNNEmbedder, error) {
	if config.ModelPath == "" {
		return nil, errors.New("embedder model path not set")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrap(err, "embedder model")
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}
	if config.Scale == 0 {
		config.Scale = 1.0
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load embedder network from %s", config.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	e := &DNNEmbedder{config: config, net: net}

	if config.CascadePath != "" {
		classifier := gocv.NewCascadeClassifier()
		if !classifier.Load(config.CascadePath) {
			classifier.Close()
			net.Close()
			return nil, errors.Errorf("failed to load cascade %s", config.CascadePath)
		}
		e.cascade = &classifier
	}

	return e, nil
}

// Embed implements Embedder.
func (e *DNNEmbedder) Embed(crop *gocv.Mat) (vector.Embedding, error) {
	if crop == nil || crop.Empty() {
		return nil, ErrNoFace
	}
	if crop.Cols() < e.config.MinFaceSize || crop.Rows() < e.config.MinFaceSize {
		return nil, errors.Wrapf(ErrNoFace, "crop %dx%d below minimum %d", crop.Cols(), crop.Rows(), e.config.MinFaceSize)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cascade != nil {
		if rects := e.cascade.DetectMultiScale(*crop); len(rects) == 0 {
			return nil, ErrNoFace
		}
	}

	size := image.Pt(e.config.InputSize, e.config.InputSize)
	blob := gocv.BlobFromImage(*crop, e.config.Scale, size, e.config.Mean, e.config.SwapRB, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	flat := out.Reshape(1, 1)
	defer flat.Close()

	n := flat.Total()
	if n == 0 {
		return nil, errors.New("embedder produced an empty output")
	}
	values := make([]float32, n)
	for i := 0; i < n; i++ {
		values[i] = flat.GetFloatAt(0, i)
	}

	return vector.FromFloat32(values), nil
}

// Close releases the network and cascade.
func (e *DNNEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cascade != nil {
		e.cascade.Close()
		e.cascade = nil
	}
	return e.net.Close()
}
