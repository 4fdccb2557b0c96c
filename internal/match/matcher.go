// Package match decides whether a live face descriptor belongs to the
// expected person.
package match

import (
	"math"
	"sort"

	"github.com/ayusman/facecheck/internal/detector"
)

// DefaultThreshold is the dlib distance below which two faces are treated
// as the same person.
const DefaultThreshold = 0.6

// UnknownLabel is reported when no reference is close enough.
const UnknownLabel = "unknown"

// Decision is the outcome of comparing a live face with the reference.
type Decision int

const (
	NotMatched Decision = iota
	Matched
)

func (d Decision) String() string {
	if d == Matched {
		return "matched"
	}
	return "not_matched"
}

// Reference is a labeled reference descriptor. It is immutable once built.
type Reference struct {
	Label      string
	Descriptor detector.Descriptor
}

// BestMatch is the nearest reference to a live descriptor.
type BestMatch struct {
	Label    string  // reference label, or UnknownLabel when out of threshold
	Distance float64 // distance to the nearest reference
}

// DistanceFunc compares two descriptors.
type DistanceFunc func(a, b detector.Descriptor) float64

// Matcher finds the nearest labeled reference and applies the threshold.
// It holds no mutable state after construction and is safe for concurrent
// use.
type Matcher struct {
	references []Reference
	threshold  float64
	distance   DistanceFunc
}

// NewMatcher creates a Matcher. A nil distance uses Euclidean distance and a
// non-positive threshold uses DefaultThreshold.
func NewMatcher(threshold float64, distance DistanceFunc, refs ...Reference) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if distance == nil {
		distance = detector.EuclideanDistance
	}
	return &Matcher{
		references: append([]Reference(nil), refs...),
		threshold:  threshold,
		distance:   distance,
	}
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// FindBestMatch returns the nearest reference. The label is UnknownLabel
// unless the distance is strictly below the threshold.
func (m *Matcher) FindBestMatch(live detector.Descriptor) BestMatch {
	best := BestMatch{Label: UnknownLabel, Distance: math.Inf(1)}
	if len(live) == 0 || len(m.references) == 0 {
		return best
	}

	ranked := make([]BestMatch, 0, len(m.references))
	for _, ref := range m.references {
		ranked = append(ranked, BestMatch{
			Label:    ref.Label,
			Distance: m.distance(live, ref.Descriptor),
		})
	}

	// Stable so equal distances keep registration order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})

	best = ranked[0]
	if !(best.Distance < m.threshold) {
		best.Label = UnknownLabel
	}
	return best
}

// Decide reports Matched only when the nearest reference is below the
// threshold and carries the expected label. A distance exactly equal to
// the threshold is NotMatched.
func (m *Matcher) Decide(live detector.Descriptor, expectedLabel string) (Decision, BestMatch) {
	best := m.FindBestMatch(live)
	if best.Label != UnknownLabel && best.Label == expectedLabel && best.Distance < m.threshold {
		return Matched, best
	}
	return NotMatched, best
}

// Decide compares one live descriptor against one labeled reference.
func Decide(live detector.Descriptor, ref Reference, threshold float64, distance DistanceFunc) (Decision, BestMatch) {
	return NewMatcher(threshold, distance, ref).Decide(live, ref.Label)
}
