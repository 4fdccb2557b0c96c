// Package geo provides one-shot device location for matched check-ins.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/facecheck/internal/plugin"
)

// ErrUnavailable is returned when no location source produced a fix.
var ErrUnavailable = errors.New("geolocation unavailable")

// Coords is a WGS84 position.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether c lies within WGS84 bounds.
func (c Coords) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Locator produces the current position once.
type Locator interface {
	Locate(ctx context.Context) (Coords, error)
}

// StaticLocator always returns the same position, for fixed kiosks.
type StaticLocator struct {
	Coords Coords
}

// Locate returns the configured position.
func (l StaticLocator) Locate(ctx context.Context) (Coords, error) {
	if err := ctx.Err(); err != nil {
		return Coords{}, err
	}
	return l.Coords, nil
}

// PluginLocator asks a plugin declaring the "locate" action.
type PluginLocator struct {
	executor *plugin.Executor
	plugin   *plugin.Plugin
	config   json.RawMessage
}

// NewPluginLocator wraps p. config is passed through as the request config.
func NewPluginLocator(executor *plugin.Executor, p *plugin.Plugin, config json.RawMessage) *PluginLocator {
	return &PluginLocator{executor: executor, plugin: p, config: config}
}

// Locate runs the plugin and validates its answer.
func (l *PluginLocator) Locate(ctx context.Context) (Coords, error) {
	var c Coords
	req := &plugin.Request{Action: plugin.ActionLocate, Config: l.config}
	if err := l.executor.Call(ctx, l.plugin, req, &c); err != nil {
		return Coords{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !c.Valid() {
		return Coords{}, fmt.Errorf("%w: %s returned out-of-range position %+v", ErrUnavailable, l.plugin.Manifest.Name, c)
	}
	return c, nil
}

// Chain tries each locator in order and returns the first fix.
type Chain []Locator

// Locate returns the first successful result. If all fail, the returned
// error wraps ErrUnavailable and every individual failure.
func (ch Chain) Locate(ctx context.Context) (Coords, error) {
	if len(ch) == 0 {
		return Coords{}, ErrUnavailable
	}
	errs := []error{ErrUnavailable}
	for _, l := range ch {
		c, err := l.Locate(ctx)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return Coords{}, errors.Join(errs...)
}
