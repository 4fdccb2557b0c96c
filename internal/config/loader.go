package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path on top of [Default], applies FACECHECK_*
// environment overrides and validates the result. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		applyEnv(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default], applies the
// environment and validates.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with FACECHECK_* variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("FACECHECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("FACECHECK_IDENTITY"); v != "" {
		cfg.Identity = v
	}
	cfg.CompanyID = envInt("FACECHECK_COMPANY_ID", cfg.CompanyID)
	if v := os.Getenv("FACECHECK_ATTENDANCE_URL"); v != "" {
		cfg.Attendance.URL = v
	}
	if v := os.Getenv("FACECHECK_SESSION_ID"); v != "" {
		cfg.Attendance.SessionID = v
	}
	cfg.Camera.DeviceID = envInt("FACECHECK_CAMERA_DEVICE", cfg.Camera.DeviceID)
	if v := os.Getenv("FACECHECK_DETECTION_BACKEND"); v != "" {
		cfg.Detection.Backend = Backend(v)
	}
	if v := os.Getenv("FACECHECK_MODEL_DIR"); v != "" {
		cfg.Detection.ModelDir = v
	}
	cfg.Detection.TickInterval = envDuration("FACECHECK_TICK_INTERVAL", cfg.Detection.TickInterval)
	cfg.Detection.MaxTickErrors = envInt("FACECHECK_MAX_TICK_ERRORS", cfg.Detection.MaxTickErrors)
	if v := os.Getenv("FACECHECK_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("FACECHECK_DB_PATH"); v != "" {
		cfg.Store.Path = v
	}
}

// envInt parses key as a non-negative integer, keeping def when unset or invalid.
func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

// Validate checks that cfg is coherent and returns every problem joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Identity == "" {
		errs = append(errs, errors.New("identity is required"))
	}

	if cfg.Attendance.URL == "" {
		errs = append(errs, errors.New("attendance.url is required"))
	} else if u, err := url.Parse(cfg.Attendance.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("attendance.url %q is not an absolute URL", cfg.Attendance.URL))
	}
	if cfg.Attendance.Timeout < 0 {
		errs = append(errs, errors.New("attendance.timeout must not be negative"))
	}

	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera resolution %dx%d is invalid", cfg.Camera.Width, cfg.Camera.Height))
	}
	if cfg.Camera.Facing != "" && cfg.Camera.Facing != "user" && cfg.Camera.Facing != "environment" {
		errs = append(errs, fmt.Errorf("camera.facing %q is invalid; valid values: user, environment", cfg.Camera.Facing))
	}
	if cfg.Camera.OpenTimeout < 0 {
		errs = append(errs, errors.New("camera.open_timeout must not be negative"))
	}

	d := cfg.Detection
	if !d.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("detection.backend %q is invalid; valid values: dlib, service", d.Backend))
	}
	if d.Backend == BackendDlib && d.ModelDir == "" {
		errs = append(errs, errors.New("detection.model_dir is required for the dlib backend"))
	}
	if d.Backend == BackendService && len(d.ServiceCommand) == 0 {
		errs = append(errs, errors.New("detection.service_command is required for the service backend"))
	}
	if d.Threshold <= 0 {
		errs = append(errs, fmt.Errorf("detection.threshold %.2f must be positive", d.Threshold))
	}
	if d.TickInterval <= 0 {
		errs = append(errs, errors.New("detection.tick_interval must be positive"))
	}
	if d.MaxTickErrors < 0 {
		errs = append(errs, errors.New("detection.max_tick_errors must not be negative"))
	}
	if d.ReferenceTimeout < 0 {
		errs = append(errs, errors.New("detection.reference_timeout must not be negative"))
	}

	loc := cfg.Location
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		errs = append(errs, errors.New("location.latitude and location.longitude must be set together"))
	}
	if loc.Latitude != nil && (*loc.Latitude < -90 || *loc.Latitude > 90) {
		errs = append(errs, fmt.Errorf("location.latitude %.6f is out of range [-90, 90]", *loc.Latitude))
	}
	if loc.Longitude != nil && (*loc.Longitude < -180 || *loc.Longitude > 180) {
		errs = append(errs, fmt.Errorf("location.longitude %.6f is out of range [-180, 180]", *loc.Longitude))
	}

	if (loc.Plugin != "" || cfg.Plugins.Notify != "") && cfg.Plugins.Dir == "" {
		errs = append(errs, errors.New("plugins.dir is required when a plugin is configured"))
	}

	if cfg.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	return errors.Join(errs...)
}
