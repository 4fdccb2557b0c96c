// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Facing is the preferred camera orientation.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

// Constraints are the hints passed to Open. Width and Height are ideal
// values; the device may pick something else, so read Resolution back
// after opening. V4L2 and AVFoundation devices have no facing selection,
// so the gocv camera ignores Facing and the configured device id stands in
// for it.
type Constraints struct {
	Width  int
	Height int
	Facing Facing
}

// DefaultConstraints asks for a 640x480 user-facing stream.
func DefaultConstraints() Constraints {
	return Constraints{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		Facing: FacingUser,
	}
}

// Camera defines the interface for camera capture implementations.
//
// Close must be idempotent and safe to call on a camera that was never
// opened.
type Camera interface {
	Open(c Constraints) error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	Resolution() (width, height int)
	IsOpen() bool
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	deviceID int
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
	width    int
	height   int
}

// NewCamera creates a new Camera with the given device ID.
func NewCamera(deviceID int) Camera {
	return &cameraImpl{deviceID: deviceID}
}

// Open opens the camera with the given resolution hints. Failures are
// classified as ErrPermissionDenied, ErrNoDevice or *DeviceError.
func (c *cameraImpl) Open(cons Constraints) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	if err := probeDevice(c.deviceID); err != nil {
		return err
	}

	capture, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return &DeviceError{Detail: fmt.Sprintf("open device %d", c.deviceID), Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("device %d: %w", c.deviceID, ErrNoDevice)
	}

	if cons.Width > 0 && cons.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cons.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cons.Height))
	}

	c.width = int(capture.Get(gocv.VideoCaptureFrameWidth))
	c.height = int(capture.Get(gocv.VideoCaptureFrameHeight))
	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
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

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, ErrFrameNotReady
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrFrameNotReady
	}

	return &mat, nil
}

// Resolution returns the negotiated frame size, or zeros when closed.
func (c *cameraImpl) Resolution() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return 0, 0
	}
	return c.width, c.height
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
