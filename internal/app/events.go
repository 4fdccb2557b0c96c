package app

import (
	"time"

	"github.com/ayusman/facecheck/internal/checkin"
)

// Event types.
const (
	EventState      = "state"
	EventResult     = "result"
	EventSubmission = "submission"
	EventPresence   = "presence"
)

// Event is a notification about check-in progress, published to local
// observers such as the websocket hub and the tray.
type Event struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	State     checkin.State   `json:"state,omitempty"`
	Result    *checkin.Result `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`
	Color     string          `json:"color,omitempty"`
	Error     string          `json:"error,omitempty"`
	Time      time.Time       `json:"time"`
}

// Publisher receives events. Implementations must not block.
type Publisher interface {
	Publish(e Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(e Event)

// Publish calls f.
func (f PublisherFunc) Publish(e Event) { f(e) }

// Publishers fans an event out to several publishers.
type Publishers []Publisher

// Publish forwards e to every publisher.
func (ps Publishers) Publish(e Event) {
	for _, p := range ps {
		if p != nil {
			p.Publish(e)
		}
	}
}
