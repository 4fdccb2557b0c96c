// Package presence keeps the attendance status indicator in sync with the
// attendance server.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/store"
)

// StatusSource reports the presence color of a user.
type StatusSource interface {
	StatusColor(ctx context.Context, identity string) (attendance.Color, error)
}

// Display renders the indicator.
type Display interface {
	SetStatusColor(c attendance.Color)
	// HideDefaultAttendance hides the stock attendance entry, which the
	// face check-in replaces.
	HideDefaultAttendance()
}

// Cache persists the last known color between runs.
type Cache interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Indicator fetches the presence color and pushes it to a Display. It is
// refreshed once at startup and again after every attendance submission.
type Indicator struct {
	source   StatusSource
	display  Display
	cache    Cache
	identity string
	logger   *slog.Logger

	mu   sync.Mutex
	last attendance.Color
}

// NewIndicator creates an Indicator. cache and logger may be nil.
func NewIndicator(source StatusSource, display Display, cache Cache, identity string, logger *slog.Logger) *Indicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{
		source:   source,
		display:  display,
		cache:    cache,
		identity: identity,
		logger:   logger,
	}
}

// Restore shows the cached color, if any, without contacting the server.
func (i *Indicator) Restore() {
	if i.cache == nil {
		return
	}
	v, err := i.cache.Get(store.SettingPresenceColor)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			i.logger.Warn("reading cached presence color", "error", err)
		}
		return
	}
	c := attendance.Color(v)
	if c != attendance.ColorCheckedIn && c != attendance.ColorCheckedOut {
		return
	}
	i.apply(c)
}

// Refresh fetches the current color and updates the display. On error the
// display keeps its previous color.
func (i *Indicator) Refresh(ctx context.Context) (attendance.Color, error) {
	c, err := i.source.StatusColor(ctx, i.identity)
	if err != nil {
		return "", fmt.Errorf("fetching presence color: %w", err)
	}

	i.apply(c)
	if i.cache != nil {
		if err := i.cache.Set(store.SettingPresenceColor, string(c)); err != nil {
			i.logger.Warn("caching presence color", "error", err)
		}
	}
	i.logger.Debug("presence refreshed", "color", c)
	return c, nil
}

// Color returns the last color shown.
func (i *Indicator) Color() attendance.Color {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}

func (i *Indicator) apply(c attendance.Color) {
	i.mu.Lock()
	i.last = c
	i.mu.Unlock()

	if i.display != nil {
		i.display.SetStatusColor(c)
		i.display.HideDefaultAttendance()
	}
}
