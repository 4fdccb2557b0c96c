// Package attendance talks to the attendance server: it fetches the user's
// reference photo, submits check-ins and reads the presence color.
package attendance

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/facecheck/internal/geo"
)

const (
	profileEndpoint = "/face_attendance/employee_profile"
	submitEndpoint  = "/face_attendance/get_attendance_employee_data"
	statusEndpoint  = "/face_attendance/get_employee_status_data"
)

// ErrNotFound is returned when the user has no usable profile photo.
var ErrNotFound = errors.New("reference image not found")

// Color is the presence indicator color reported by the server.
type Color string

const (
	ColorCheckedIn  Color = "green"
	ColorCheckedOut Color = "red"
)

// Client is an attendance server client.
type Client struct {
	baseURL   *url.URL
	sessionID string
	http      *http.Client
}

// NewClient creates a client for the server at baseURL. sessionID is the
// session cookie of a logged-in user and may be empty for public routes.
func NewClient(baseURL, sessionID string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid attendance url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid attendance url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		baseURL:   u,
		sessionID: sessionID,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) resolveURL(endpoint string) string {
	return c.baseURL.JoinPath(endpoint).String()
}

// FetchReferenceImage returns the decoded profile photo of identity.
func (c *Client) FetchReferenceImage(ctx context.Context, identity string) ([]byte, error) {
	raw, err := call[json.RawMessage](ctx, c, profileEndpoint, map[string]any{
		"current_user": userID(identity),
	})
	if err != nil {
		return nil, err
	}

	// The server answers false when the user has no photo.
	var dataURL string
	if err := json.Unmarshal(raw, &dataURL); err != nil || dataURL == "" {
		return nil, ErrNotFound
	}
	return DecodeDataURL(dataURL)
}

// Submission is one attendance record.
type Submission struct {
	Company int
	User    string
	Selfie  []byte // PNG
	Coords  *geo.Coords
}

// SubmitAttendance toggles the user's attendance with the given selfie and
// position. Missing coordinates are sent as false, letting the server fall
// back to its own lookup.
func (c *Client) SubmitAttendance(ctx context.Context, s Submission) error {
	params := map[string]any{
		"company":   s.Company,
		"user":      userID(s.User),
		"selfie":    EncodeDataURL("image/png", s.Selfie),
		"latitude":  false,
		"longitude": false,
	}
	if s.Coords != nil {
		params["latitude"] = s.Coords.Latitude
		params["longitude"] = s.Coords.Longitude
	}

	result, err := call[json.RawMessage](ctx, c, submitEndpoint, params)
	if err != nil {
		return err
	}
	// An empty object means the server did not find the employee.
	if trimmed := strings.TrimSpace(string(result)); trimmed == "{}" || trimmed == "" {
		return fmt.Errorf("attendance not recorded for user %s in company %d", s.User, s.Company)
	}
	return nil
}

// StatusColor returns the presence color of identity.
func (c *Client) StatusColor(ctx context.Context, identity string) (Color, error) {
	color, err := call[Color](ctx, c, statusEndpoint, map[string]any{
		"current_user": userID(identity),
	})
	if err != nil {
		return "", err
	}
	if color != ColorCheckedIn && color != ColorCheckedOut {
		return "", fmt.Errorf("unexpected status color %q", color)
	}
	return color, nil
}

// userID sends numeric identities as numbers, as the server expects.
func userID(identity string) any {
	if n, err := strconv.Atoi(identity); err == nil {
		return n
	}
	return identity
}

// EncodeDataURL returns data as a base64 data URL.
func EncodeDataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL decodes a base64 data URL. SVG placeholders are rejected
// with ErrNotFound since they never contain a face.
func DecodeDataURL(s string) ([]byte, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("not a base64 data url")
	}
	if strings.Contains(header, "svg") {
		return nil, ErrNotFound
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding data url: %w", err)
	}
	return data, nil
}
