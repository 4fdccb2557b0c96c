package capture

import (
	"context"
	"sync"
)

// FrameSlot is a single-slot mailbox of encoded preview frames. Publishing
// overwrites the previous frame; readers that fall behind skip straight to
// the newest one. The detection loop publishes the frames it already read,
// so preview viewers never touch the camera.
type FrameSlot struct {
	mu     sync.Mutex
	data   []byte
	seq    uint64
	notify chan struct{}
}

// NewFrameSlot returns an empty slot.
func NewFrameSlot() *FrameSlot {
	return &FrameSlot{notify: make(chan struct{})}
}

// Publish stores frame as the latest one and wakes waiting readers.
func (s *FrameSlot) Publish(frame []byte) {
	s.mu.Lock()
	s.data = frame
	s.seq++
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// Next blocks until a frame newer than after is available and returns it
// with its sequence number. Pass 0 to get the current frame if any.
func (s *FrameSlot) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		s.mu.Lock()
		if s.seq > after && s.data != nil {
			data, seq := s.data, s.seq
			s.mu.Unlock()
			return data, seq, nil
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, after, ctx.Err()
		}
	}
}

// Seq returns the sequence number of the latest frame.
func (s *FrameSlot) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
