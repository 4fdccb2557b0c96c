package match

import (
	"math"
	"testing"

	"github.com/ayusman/facecheck/internal/detector"
)

// fixedDistance ignores its inputs so boundary values are exact.
func fixedDistance(d float64) DistanceFunc {
	return func(a, b detector.Descriptor) float64 { return d }
}

func TestMatcher_DecideBoundary(t *testing.T) {
	ref := Reference{Label: "7", Descriptor: detector.DescriptorAt(0)}
	live := detector.DescriptorAt(0)

	tests := []struct {
		name     string
		distance float64
		label    string
		want     Decision
	}{
		{name: "well inside", distance: 0.3, label: "7", want: Matched},
		{name: "just inside", distance: 0.5999999, label: "7", want: Matched},
		{name: "exactly threshold", distance: 0.6, label: "7", want: NotMatched},
		{name: "just outside", distance: 0.6000001, label: "7", want: NotMatched},
		{name: "far", distance: 1.4, label: "7", want: NotMatched},
		{name: "close but wrong label", distance: 0.1, label: "8", want: NotMatched},
		{name: "zero distance", distance: 0, label: "7", want: Matched},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(DefaultThreshold, fixedDistance(tt.distance), ref)
			got, best := m.Decide(live, tt.label)
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v (best %+v)", got, tt.want, best)
			}
			if best.Distance != tt.distance {
				t.Errorf("best.Distance = %v, want %v", best.Distance, tt.distance)
			}
		})
	}
}

func TestMatcher_FindBestMatch_Unknown(t *testing.T) {
	ref := Reference{Label: "Static User", Descriptor: detector.DescriptorAt(0)}
	m := NewMatcher(0.6, nil, ref)

	best := m.FindBestMatch(detector.DescriptorAt(0.3))
	if best.Label != "Static User" {
		t.Errorf("Label = %q, want Static User", best.Label)
	}
	if math.Abs(best.Distance-0.3) > 1e-6 {
		t.Errorf("Distance = %v, want 0.3", best.Distance)
	}

	best = m.FindBestMatch(detector.DescriptorAt(0.9))
	if best.Label != UnknownLabel {
		t.Errorf("Label = %q, want %q", best.Label, UnknownLabel)
	}
}

func TestMatcher_FindBestMatch_Nearest(t *testing.T) {
	m := NewMatcher(0.6, nil,
		Reference{Label: "far", Descriptor: detector.DescriptorAt(0.5)},
		Reference{Label: "near", Descriptor: detector.DescriptorAt(0.1)},
	)

	best := m.FindBestMatch(detector.DescriptorAt(0))
	if best.Label != "near" {
		t.Errorf("Label = %q, want near", best.Label)
	}
}

func TestMatcher_Empty(t *testing.T) {
	tests := []struct {
		name string
		m    *Matcher
		live detector.Descriptor
	}{
		{name: "no references", m: NewMatcher(0.6, nil), live: detector.DescriptorAt(0)},
		{name: "empty live", m: NewMatcher(0.6, nil, Reference{Label: "7", Descriptor: detector.DescriptorAt(0)}), live: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, best := tt.m.Decide(tt.live, "7")
			if got != NotMatched || best.Label != UnknownLabel {
				t.Errorf("Decide() = %v, %+v", got, best)
			}
		})
	}
}

func TestMatcher_DefaultThreshold(t *testing.T) {
	if got := NewMatcher(0, nil).Threshold(); got != DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", got, DefaultThreshold)
	}
	if got := NewMatcher(-1, nil).Threshold(); got != DefaultThreshold {
		t.Errorf("Threshold() = %v, want %v", got, DefaultThreshold)
	}
}

func TestDecide_Deterministic(t *testing.T) {
	ref := Reference{Label: "7", Descriptor: detector.DescriptorAt(0)}
	live := detector.DescriptorAt(0.42)

	first, firstBest := Decide(live, ref, 0.6, nil)
	for i := 0; i < 10; i++ {
		got, best := Decide(live, ref, 0.6, nil)
		if got != first || best != firstBest {
			t.Fatalf("Decide() run %d = %v/%+v, want %v/%+v", i, got, best, first, firstBest)
		}
	}
	if first != Matched {
		t.Errorf("Decide() = %v, want matched", first)
	}
}
