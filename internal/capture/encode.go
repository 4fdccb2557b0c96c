package capture

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when an image decodes to nothing.
var ErrEmptyImage = errors.New("image is empty")

// EncodePNG encodes frame as a PNG still, the format the attendance server
// expects for selfies.
func EncodePNG(frame *gocv.Mat) ([]byte, error) {
	return encode(gocv.PNGFileExt, frame)
}

// EncodeJPEG encodes frame as JPEG for previews and embedders.
func EncodeJPEG(frame *gocv.Mat) ([]byte, error) {
	return encode(gocv.JPEGFileExt, frame)
}

func encode(ext gocv.FileExt, frame *gocv.Mat) ([]byte, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyImage
	}
	buf, err := gocv.IMEncode(ext, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so copy out.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DecodeImage decodes an encoded image (PNG, JPEG, ...) into a BGR Mat.
// The caller must close the returned Mat.
func DecodeImage(data []byte) (*gocv.Mat, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyImage
	}
	return &mat, nil
}
