// Package plugin runs external helper executables for facecheck, such as
// location providers and desktop notifiers.
//
// A plugin lives in its own directory with a plugin.json manifest. It is
// started once per request, reads a JSON Request on stdin and writes a JSON
// Response on stdout.
package plugin

import (
	"encoding/json"
	"slices"
)

// Well-known actions.
const (
	ActionLocate = "locate"
	ActionNotify = "notify"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the plugin declares action.
func (m Manifest) Supports(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Request is sent to a plugin on stdin.
type Request struct {
	Action string          `json:"action"`
	Event  string          `json:"event,omitempty"` // check-in outcome that triggered the call
	Config json.RawMessage `json:"config,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is read from a plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
