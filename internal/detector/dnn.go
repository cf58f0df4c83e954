package detector

import (
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Each SSD detection row is [batch, class, confidence, left, top, right, bottom].
const ssdRowSize = 7

// DNNDetector runs an SSD-style face detection network through OpenCV DNN.
type DNNDetector struct {
	config Config
	net    gocv.Net
	mu     sync.Mutex
}

// NewDNNDetector loads the network described by config. A missing or
// unreadable model is returned as an error; callers treat it as fatal.
func NewDNNDetector(config Config) (*DNNDetector, error) {
	if config.ModelPath == "" {
		return nil, errors.New("detector model path not set")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrap(err, "detector model")
	}
	if config.ConfigPath != "" {
		if _, err := os.Stat(config.ConfigPath); err != nil {
			return nil, errors.Wrap(err, "detector config")
		}
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		return nil, errors.Errorf("failed to load detector network from %s", config.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNNDetector{config: config, net: net}, nil
}

// Detect implements Detector.
func (d *DNNDetector) Detect(frame *gocv.Mat) ([]image.Rectangle, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(d.config.InputSize, d.config.InputSize)
	blob := gocv.BlobFromImage(*frame, 1.0, size, d.config.Mean, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	res := prob.Reshape(1, 1)
	defer res.Close()

	cols := float32(frame.Cols())
	rows := float32(frame.Rows())

	var boxes []image.Rectangle
	for i := 0; i+ssdRowSize <= res.Total(); i += ssdRowSize {
		confidence := res.GetFloatAt(0, i+2)
		if float64(confidence) < d.config.MinConfidence {
			continue
		}
		left := int(res.GetFloatAt(0, i+3) * cols)
		top := int(res.GetFloatAt(0, i+4) * rows)
		right := int(res.GetFloatAt(0, i+5) * cols)
		bottom := int(res.GetFloatAt(0, i+6) * rows)
		boxes = append(boxes, image.Rect(left, top, right, bottom))
	}

	return Clamp(boxes, frame.Cols(), frame.Rows()), nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
