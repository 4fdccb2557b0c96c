package checkin

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable cause of a session outcome.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonReferenceFetchFailed     Reason = "reference_fetch_failed"
	ReasonImageLoadFailed          Reason = "image_load_failed"
	ReasonNoReferenceFace          Reason = "no_reference_face"
	ReasonPermissionDenied         Reason = "permission_denied"
	ReasonNoDeviceFound            Reason = "no_device_found"
	ReasonDeviceError              Reason = "device_error"
	ReasonDetectionSetupIncomplete Reason = "detection_setup_incomplete"
	ReasonDetectionFailed          Reason = "detection_failed"
	ReasonNoMatch                  Reason = "no_match"
	ReasonUserCancelled            Reason = "user_cancelled"
	ReasonGeolocationUnavailable   Reason = "geolocation_unavailable"
)

// Infrastructure reports whether r is a system failure as opposed to an
// expected user-level outcome (no match, cancel).
func (r Reason) Infrastructure() bool {
	switch r {
	case ReasonNone, ReasonNoMatch, ReasonUserCancelled, ReasonGeolocationUnavailable:
		return false
	}
	return true
}

var messages = map[Reason]string{
	ReasonReferenceFetchFailed:     "Could not fetch the reference image from the attendance service.",
	ReasonImageLoadFailed:          "Could not load the reference image.",
	ReasonNoReferenceFace:          "No face detected in the reference image. Please ensure it contains a clear face.",
	ReasonPermissionDenied:         "Permission denied to access camera. Please allow camera access.",
	ReasonNoDeviceFound:            "No camera found on this device.",
	ReasonDeviceError:              "An unknown error occurred while accessing camera.",
	ReasonDetectionSetupIncomplete: "Internal error: Recognition setup incomplete.",
	ReasonDetectionFailed:          "Face detection keeps failing. Please try again later.",
	ReasonNoMatch:                  "Face not recognized. Please try again or contact support.",
	ReasonUserCancelled:            "Face recognition cancelled.",
	ReasonGeolocationUnavailable:   "Location unavailable; attendance logged without coordinates.",
}

// MatchedMessage is shown for a successful check-in.
const MatchedMessage = "Face recognized successfully! Proceeding with attendance."

// Message returns the user-facing text for r.
func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return string(r)
}

// Failure is a terminal error carrying its Reason.
type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(r Reason, err error) *Failure {
	return &Failure{Reason: r, Err: err}
}

// ReasonOf extracts the Reason from err, defaulting to fallback.
func ReasonOf(err error, fallback Reason) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return fallback
}
