package checkin

// State is a session lifecycle state. States only move forward.
type State int

const (
	StateInitializing State = iota
	StateLoadingReference
	StateAwaitingCamera
	StateDetecting
	StateTerminating
	StateClosed
)

var stateNames = [...]string{
	StateInitializing:     "initializing",
	StateLoadingReference: "loading_reference",
	StateAwaitingCamera:   "awaiting_camera",
	StateDetecting:        "detecting",
	StateTerminating:      "terminating",
	StateClosed:           "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText makes State render as its name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether s is Terminating or Closed.
func (s State) Terminal() bool {
	return s >= StateTerminating
}
