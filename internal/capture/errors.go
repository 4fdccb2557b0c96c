package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrFrameNotReady means the device delivered no usable frame yet.
	ErrFrameNotReady = errors.New("frame not ready")
	// ErrPermissionDenied means the OS refused access to the device.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoDevice means no camera matched the requested device.
	ErrNoDevice = errors.New("no camera device found")
)

// DeviceError is any other failure while acquiring the device.
type DeviceError struct {
	Detail string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return "camera device error: " + e.Detail
	}
	return fmt.Sprintf("camera device error: %s: %v", e.Detail, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// probeDevice checks the V4L2 node on Linux so that missing devices and
// permission problems are reported as such instead of a generic open
// failure. Other platforms rely on OpenVideoCapture.
func probeDevice(deviceID int) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	return probePath(fmt.Sprintf("/dev/video%d", deviceID))
}

func probePath(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", path, ErrNoDevice)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", path, ErrPermissionDenied)
	default:
		return &DeviceError{Detail: path, Err: err}
	}
}
