package checkin

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ayusman/facecheck/internal/capture"
	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/match"
)

// ProfileSource returns the reference photo for an identity.
type ProfileSource interface {
	FetchReferenceImage(ctx context.Context, identity string) ([]byte, error)
}

// ProfileFunc adapts a function to ProfileSource.
type ProfileFunc func(ctx context.Context, identity string) ([]byte, error)

// FetchReferenceImage calls f.
func (f ProfileFunc) FetchReferenceImage(ctx context.Context, identity string) ([]byte, error) {
	return f(ctx, identity)
}

// FileProfile serves the same local image for every identity.
func FileProfile(path string) ProfileFunc {
	return func(ctx context.Context, _ string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	}
}

// Loader turns an identity's reference photo into a labeled descriptor.
type Loader struct {
	Profiles ProfileSource
	Detector detector.Detector

	// Label is the expected match label. Empty means the identity itself.
	Label string
}

// Load fetches and decodes the reference photo and extracts exactly one
// descriptor from it. Errors are *Failure values carrying the reason.
func (l *Loader) Load(ctx context.Context, identity string) (match.Reference, error) {
	if l.Profiles == nil || l.Detector == nil {
		return match.Reference{}, fail(ReasonDetectionSetupIncomplete, errors.New("loader is missing a collaborator"))
	}

	data, err := l.Profiles.FetchReferenceImage(ctx, identity)
	if err != nil {
		return match.Reference{}, fail(ReasonReferenceFetchFailed, err)
	}
	if len(data) == 0 {
		return match.Reference{}, fail(ReasonImageLoadFailed, capture.ErrEmptyImage)
	}

	img, err := capture.DecodeImage(data)
	if err != nil {
		return match.Reference{}, fail(ReasonImageLoadFailed, err)
	}
	defer img.Close()

	desc, err := l.Detector.Embed(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return match.Reference{}, fail(ReasonReferenceFetchFailed, ctx.Err())
		}
		return match.Reference{}, fail(ReasonImageLoadFailed, fmt.Errorf("embedding reference: %w", err))
	}
	if len(desc) == 0 {
		return match.Reference{}, fail(ReasonNoReferenceFace, nil)
	}

	label := l.Label
	if label == "" {
		label = identity
	}
	return match.Reference{Label: label, Descriptor: desc}, nil
}
