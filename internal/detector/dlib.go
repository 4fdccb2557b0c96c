package detector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kagami/go-face"
	"gocv.io/x/gocv"
)

// Model files go-face expects in the model directory.
var dlibModels = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
	"mmod_human_face_detector.dat",
}

// ErrModelsMissing is returned when the dlib model directory is incomplete.
var ErrModelsMissing = errors.New("dlib models missing")

// DlibDetector implements Detector with dlib through go-face.
type DlibDetector struct {
	rec *face.Recognizer
	mu  sync.Mutex
}

// NewDlibDetector loads the dlib models from modelDir.
func NewDlibDetector(modelDir string) (*DlibDetector, error) {
	for _, name := range dlibModels {
		if _, err := os.Stat(filepath.Join(modelDir, name)); err != nil {
			return nil, fmt.Errorf("%w: %s in %s", ErrModelsMissing, name, modelDir)
		}
	}

	rec, err := face.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models: %w", err)
	}
	return &DlibDetector{rec: rec}, nil
}

// Embed encodes frame as JPEG and runs dlib's HOG detector and ResNet
// embedder on it. dlib is not safe for concurrent use, so calls are
// serialized.
func (d *DlibDetector) Embed(ctx context.Context, frame *gocv.Mat) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec == nil {
		return nil, errors.New("dlib detector closed")
	}

	faces, err := d.rec.Recognize(buf.GetBytes())
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	if len(faces) == 0 {
		return nil, nil
	}

	desc := make(Descriptor, len(faces[0].Descriptor))
	copy(desc, faces[0].Descriptor[:])
	return desc, nil
}

// Distance returns the Euclidean distance between a and b.
func (d *DlibDetector) Distance(a, b Descriptor) float64 {
	return EuclideanDistance(a, b)
}

// Close frees the dlib recognizer.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rec != nil {
		d.rec.Close()
		d.rec = nil
	}
	return nil
}
