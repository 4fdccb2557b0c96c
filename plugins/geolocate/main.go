// Package main provides a geolocation plugin for facecheck.
// It answers the "locate" action with the device's current coordinates,
// using CoreLocationCLI on macOS and GeoClue's where-am-i on Linux.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
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

// Config lets a site pin the coordinates (kiosks, desktops without GPS).
type Config struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Coords is the "locate" result.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// lookupTimeout stays under the executor's default timeout.
const lookupTimeout = 4 * time.Second

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "locate" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	coords, err := locate(req.Config)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("locate failed: %v", err))
		return
	}

	data, _ := json.Marshal(coords)
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

func locate(raw json.RawMessage) (Coords, error) {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Coords{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if cfg.Latitude != nil && cfg.Longitude != nil {
		return Coords{Latitude: *cfg.Latitude, Longitude: *cfg.Longitude}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	switch runtime.GOOS {
	case "darwin":
		out, err := run(ctx, "CoreLocationCLI", "-once", "-format", "%latitude %longitude")
		if err != nil {
			return Coords{}, err
		}
		return parsePair(out)
	case "linux":
		out, err := run(ctx, "/usr/libexec/geoclue-2.0/demos/where-am-i", "-t", "3")
		if err != nil {
			return Coords{}, err
		}
		return parseWhereAmI(out)
	default:
		return Coords{}, fmt.Errorf("no location source on %s", runtime.GOOS)
	}
}

func run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// parsePair parses "lat lon".
func parsePair(s string) (Coords, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Coords{}, fmt.Errorf("unexpected output %q", s)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Coords{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Coords{}, fmt.Errorf("longitude: %w", err)
	}
	return Coords{Latitude: lat, Longitude: lon}, nil
}

// parseWhereAmI reads the "Latitude:" and "Longitude:" lines printed by
// GeoClue's demo agent, e.g. "Latitude:    20.296100°".
func parseWhereAmI(s string) (Coords, error) {
	var c Coords
	var haveLat, haveLon bool

	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		val = strings.TrimSuffix(strings.TrimSpace(val), "°")
		switch strings.TrimSpace(key) {
		case "Latitude":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Coords{}, fmt.Errorf("latitude: %w", err)
			}
			c.Latitude, haveLat = f, true
		case "Longitude":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return Coords{}, fmt.Errorf("longitude: %w", err)
			}
			c.Longitude, haveLon = f, true
		}
	}
	if !haveLat || !haveLon {
		return Coords{}, errors.New("no fix reported")
	}
	return c, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
