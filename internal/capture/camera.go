// Package capture provides pull-based frame sources backed by GoCV (OpenCV).
package capture

import (
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Default capture resolution.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when reading from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrFrameRead is returned when the device yields no usable frame.
	ErrFrameRead = errors.New("failed to read frame")
)

// Camera is a single-reader frame source. Callers Open it once, pull frames
// sequentially with ReadFrame and Close it on every exit path.
type Camera interface {
	Open() error
	Close() error
	// ReadFrame returns the next 3-channel BGR frame. The caller owns the
	// returned Mat and must Close it.
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

type cameraImpl struct {
	deviceID int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
}

// NewCamera returns a Camera for the given video device index.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{deviceID: deviceID}
}

// Open opens the device at 640x480. Opening an open camera is a no-op.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return errors.Wrapf(err, "open video device %d", c.deviceID)
	}
	if !vc.IsOpened() {
		vc.Close()
		return errors.Errorf("video device %d is not available", c.deviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	vc.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)

	c.capture = vc
	c.running = true
	return nil
}

// Close releases the device. Closing a closed camera returns nil.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false
	return err
}

func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.Wrapf(ErrFrameRead, "device %d", c.deviceID)
	}
	if mat.Empty() {
		mat.Close()
		return nil, errors.Wrapf(ErrFrameRead, "device %d returned an empty frame", c.deviceID)
	}

	return &mat, nil
}

func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
