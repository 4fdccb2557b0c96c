package detector

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu          sync.Mutex
	script      []Descriptor
	pos         int
	err         error
	delay       time.Duration
	release     chan struct{}
	calls       int
	inFlight    int
	maxInFlight int
	closed      bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDescriptors sets the descriptors returned by successive Embed calls.
// The last entry repeats once the script is exhausted; a nil entry means
// no face in that frame.
func (m *MockDetector) SetDescriptors(ds ...Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = ds
	m.pos = 0
}

// SetError sets the error that will be returned by Embed.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every Embed call take d (or until ctx ends).
func (m *MockDetector) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Block makes Embed calls wait until Release is called or ctx ends.
func (m *MockDetector) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release = make(chan struct{})
}

// Release unblocks calls held by Block.
func (m *MockDetector) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.release != nil {
		close(m.release)
		m.release = nil
	}
}

// Embed returns the next scripted descriptor or the configured error.
func (m *MockDetector) Embed(ctx context.Context, frame *gocv.Mat) (Descriptor, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay, release := m.delay, m.release
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return nil, nil
	}
	d := m.script[m.pos]
	if m.pos < len(m.script)-1 {
		m.pos++
	}
	return d.Clone(), nil
}

// Distance returns the Euclidean distance between a and b.
func (m *MockDetector) Distance(a, b Descriptor) float64 {
	return EuclideanDistance(a, b)
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Embed was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MaxConcurrent returns the highest number of overlapping Embed calls seen.
func (m *MockDetector) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// DescriptorAt returns a unit-axis-aligned descriptor whose distance from
// DescriptorAt(0) is exactly dist. Handy for threshold tests.
func DescriptorAt(dist float64) Descriptor {
	d := make(Descriptor, DescriptorSize)
	d[0] = float32(dist)
	return d
}
