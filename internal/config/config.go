// Package config defines the facecheck configuration and its loaders.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// LogLevel is the minimum slog level written by the agent.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the known levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the face embedding implementation.
type Backend string

const (
	// BackendDlib runs dlib in-process through go-face.
	BackendDlib Backend = "dlib"
	// BackendService talks to an external embedding process over stdin/stdout.
	BackendService Backend = "service"
)

// IsValid reports whether b is a known backend.
func (b Backend) IsValid() bool {
	return b == BackendDlib || b == BackendService
}

// Config is the root configuration.
type Config struct {
	LogLevel   LogLevel         `yaml:"log_level"`
	Identity   string           `yaml:"identity"`
	CompanyID  int              `yaml:"company_id"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Camera     CameraConfig     `yaml:"camera"`
	Detection  DetectionConfig  `yaml:"detection"`
	Location   LocationConfig   `yaml:"location"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Server     ServerConfig     `yaml:"server"`
	Store      StoreConfig      `yaml:"store"`
	Tray       TrayConfig       `yaml:"tray"`
}

// AttendanceConfig points at the attendance server (Odoo JSON-RPC).
type AttendanceConfig struct {
	URL       string        `yaml:"url"`
	SessionID string        `yaml:"session_id"` // session_id cookie of a logged-in user
	Timeout   time.Duration `yaml:"timeout"`
}

// CameraConfig holds device selection and resolution hints.
type CameraConfig struct {
	DeviceID    int           `yaml:"device_id"`
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Facing      string        `yaml:"facing"` // "user" or "environment"; a hint only
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// DetectionConfig tunes the embedding backend and the detection loop.
type DetectionConfig struct {
	Backend          Backend       `yaml:"backend"`
	ModelDir         string        `yaml:"model_dir"`
	ServiceCommand   []string      `yaml:"service_command"`
	Threshold        float64       `yaml:"threshold"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	MaxTickErrors    int           `yaml:"max_tick_errors"` // 0 means unlimited
	ReferenceTimeout time.Duration `yaml:"reference_timeout"`
}

// LocationConfig selects how coordinates are obtained after a match.
// When Plugin is set it is tried first; the static coordinates, if any,
// are the fallback.
type LocationConfig struct {
	Plugin    string        `yaml:"plugin"`
	Latitude  *float64      `yaml:"latitude"`
	Longitude *float64      `yaml:"longitude"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PluginsConfig locates external plugins.
type PluginsConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
	Notify  string        `yaml:"notify"` // plugin used for user notifications; empty disables
}

// ServerConfig configures the local HTTP API.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StoreConfig configures the check-in journal.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// TrayConfig toggles the system tray indicator.
type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		LogLevel: LogInfo,
		Attendance: AttendanceConfig{
			Timeout: 10 * time.Second,
		},
		Camera: CameraConfig{
			DeviceID:    0,
			Width:       640,
			Height:      480,
			Facing:      "user",
			OpenTimeout: 10 * time.Second,
		},
		Detection: DetectionConfig{
			Backend:          BackendDlib,
			ModelDir:         filepath.Join(dataDir, "models"),
			ServiceCommand:   []string{"python3", "scripts/face_service.py"},
			Threshold:        0.6,
			TickInterval:     100 * time.Millisecond,
			ReferenceTimeout: 15 * time.Second,
		},
		Location: LocationConfig{
			Timeout: 5 * time.Second,
		},
		Plugins: PluginsConfig{
			Dir:     filepath.Join(dataDir, "plugins"),
			Timeout: 5 * time.Second,
		},
		Server: ServerConfig{
			ListenAddr: "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "facecheck.db"),
		},
		Tray: TrayConfig{
			Enabled: true,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".facecheck"
	}
	return filepath.Join(home, ".facecheck")
}
