// Package main provides a desktop notification plugin for facecheck.
// It shows check-in outcomes via AppleScript on macOS and notify-send on
// Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string          `json:"action"`
	Event  string          `json:"event"`
	Config json.RawMessage `json:"config"`
	Params json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NotifyParams is the payload of a "notify" request.
type NotifyParams struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"` // info, warning or error
}

// Config tweaks delivery. DryRun returns the command instead of running it.
type Config struct {
	Sound  string `json:"sound"`
	DryRun bool   `json:"dry_run"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "notify" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	var p NotifyParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to parse params: %v", err))
		return
	}
	if p.Message == "" {
		writeErrorResponse("message is required")
		return
	}
	if p.Title == "" {
		p.Title = "Face check-in"
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	argv, err := buildCommand(runtime.GOOS, p, cfg)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	if cfg.DryRun {
		data, _ := json.Marshal(map[string][]string{"command": argv})
		json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
		return
	}

	if out, err := exec.Command(argv[0], argv[1:]...).CombinedOutput(); err != nil {
		writeErrorResponse(fmt.Sprintf("notify failed: %v: %s", err, strings.TrimSpace(string(out))))
		return
	}

	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}

// buildCommand returns the argv that displays p on goos.
func buildCommand(goos string, p NotifyParams, cfg Config) ([]string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", quoteAppleScript(p.Message), quoteAppleScript(p.Title))
		if cfg.Sound != "" {
			script += " sound name " + quoteAppleScript(cfg.Sound)
		}
		return []string{"osascript", "-e", script}, nil
	case "linux":
		urgency := "normal"
		switch p.Level {
		case "error":
			urgency = "critical"
		case "info":
			urgency = "low"
		}
		return []string{"notify-send", "--app-name=facecheck", "--urgency=" + urgency, p.Title, p.Message}, nil
	default:
		return nil, fmt.Errorf("notifications not supported on %s", goos)
	}
}

// quoteAppleScript returns s as an AppleScript string literal.
func quoteAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
