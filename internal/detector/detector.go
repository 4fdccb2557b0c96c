// Package detector wraps face detection and embedding backends behind a
// single interface.
package detector

import (
	"context"
	"errors"
	"math"

	"gocv.io/x/gocv"
)

// DescriptorSize is the length of a dlib face descriptor.
const DescriptorSize = 128

// ErrDescriptorMismatch is returned when comparing descriptors of different
// lengths.
var ErrDescriptorMismatch = errors.New("descriptor length mismatch")

// Descriptor is a face embedding vector.
type Descriptor []float32

// Clone returns a copy of d.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	out := make(Descriptor, len(d))
	copy(out, d)
	return out
}

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Embed finds a face in frame and returns its descriptor. Only one face
	// is used; when several are present the backend's first result wins.
	// Returns nil, nil if no face is detected.
	Embed(ctx context.Context, frame *gocv.Mat) (Descriptor, error)

	// Distance compares two descriptors. Smaller is more similar.
	Distance(a, b Descriptor) float64

	// Close releases any resources held by the detector.
	Close() error
}

// EuclideanDistance is the metric used by dlib's face recognition model.
// Descriptors of different lengths are infinitely far apart.
func EuclideanDistance(a, b Descriptor) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
