package checkin

import (
	"strings"
	"time"

	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/geo"
)

// Result is the single terminal outcome of a session.
//
// When Matched is true, Descriptor and Selfie come from the frame that
// produced the match, and Coords is set unless LocationReason says the fix
// was unavailable. When Matched is false, Reason says why.
type Result struct {
	SessionID string `json:"session_id"`
	Identity  string `json:"identity"`
	Matched   bool   `json:"matched"`
	Reason    Reason `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`

	Descriptor detector.Descriptor `json:"descriptor,omitempty"`
	// Distance to the reference; zero when no face was compared.
	Distance float64     `json:"distance,omitempty"`
	Selfie   []byte      `json:"-"` // PNG
	Coords   *geo.Coords `json:"coords,omitempty"`

	// LocationReason is geolocation_unavailable when a match was made but
	// no position could be obtained.
	LocationReason Reason `json:"location_reason,omitempty"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Outcome is "matched" or the failure reason.
func (r Result) Outcome() string {
	if r.Matched {
		return "matched"
	}
	return string(r.Reason)
}

// Message is the user-facing summary of the result.
func (r Result) Message() string {
	if r.Matched {
		return MatchedMessage
	}
	if r.Reason == ReasonDeviceError && r.Detail != "" {
		return strings.TrimSuffix(r.Reason.Message(), ".") + ": " + r.Detail
	}
	return r.Reason.Message()
}

// outcome is the terminal decision recorded before teardown runs.
type outcome struct {
	matched    bool
	reason     Reason
	detail     string
	descriptor detector.Descriptor
	distance   float64
	selfie     []byte
}

func failed(r Reason, err error) outcome {
	o := outcome{reason: r}
	if err != nil {
		o.detail = err.Error()
	}
	return o
}
