// Package detector locates faces in video frames.
package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// Detector finds faces in a frame.
type Detector interface {
	// Detect returns one box per face in frame pixel coordinates, clamped to
	// the frame. Boxes carry no ordering guarantee; an empty slice means no face.
	Detect(frame *gocv.Mat) ([]image.Rectangle, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the DNN face detector.
type Config struct {
	// ModelPath is the network weights file (e.g. a res10 SSD .caffemodel or .onnx).
	ModelPath string
	// ConfigPath is the optional network description (e.g. deploy.prototxt).
	ConfigPath string
	// MinConfidence drops detections scored below it (0.0-1.0).
	MinConfidence float64
	// InputSize is the square blob size fed to the network.
	InputSize int
	// Mean is subtracted per channel when building the input blob.
	Mean gocv.Scalar
}

// DefaultConfig returns settings for the OpenCV res10 300x300 SSD face detector.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.5,
		InputSize:     300,
		Mean:          gocv.NewScalar(104, 177, 123, 0),
	}
}

// Clamp intersects boxes with the frame bounds and drops the empty ones.
func Clamp(boxes []image.Rectangle, cols, rows int) []image.Rectangle {
	bounds := image.Rect(0, 0, cols, rows)
	out := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		b = b.Canon().Intersect(bounds)
		if b.Empty() {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Crop copies the box region out of frame. It reports false when the box
// does not overlap the frame. The caller must Close the returned Mat.
func Crop(frame *gocv.Mat, box image.Rectangle) (gocv.Mat, bool) {
	clamped := Clamp([]image.Rectangle{box}, frame.Cols(), frame.Rows())
	if len(clamped) == 0 {
		return gocv.NewMat(), false
	}
	region := frame.Region(clamped[0])
	defer region.Close()
	return region.Clone(), true
}
