package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ayusman/facecheck/internal/app"
	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/capture"
	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/config"
	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/geo"
	"github.com/ayusman/facecheck/internal/observe"
	"github.com/ayusman/facecheck/internal/plugin"
	"github.com/ayusman/facecheck/internal/presence"
	"github.com/ayusman/facecheck/internal/store"
)

// agent is the assembled application plus what must be released with it.
type agent struct {
	app     *app.App
	store   *store.Store
	client  *attendance.Client
	preview *capture.FrameSlot
}

// agentOptions carries the parts that differ between the tray agent and a
// one-shot terminal check-in.
type agentOptions struct {
	display presence.Display
	events  app.Publisher
	metrics *observe.Metrics
	preview bool
}

func newAgent(cfg *config.Config, logger *slog.Logger, opts agentOptions) (*agent, error) {
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening check-in journal: %w", err)
	}

	client, err := attendance.NewClient(cfg.Attendance.URL, cfg.Attendance.SessionID, cfg.Attendance.Timeout)
	if err != nil {
		st.Close()
		return nil, err
	}

	det, err := newDetector(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	plugins := plugin.NewManager(cfg.Plugins.Dir, logger)
	if cfg.Location.Plugin != "" || cfg.Plugins.Notify != "" {
		if err := plugins.Discover(); err != nil {
			logger.Warn("plugin discovery failed", "dir", plugins.PluginDir(), "error", err)
		}
		for _, p := range plugins.List() {
			logger.Debug("plugin discovered", "name", p.Manifest.Name, "version", p.Manifest.Version, "actions", p.Manifest.Actions)
		}
	}
	executor := plugin.NewExecutor(cfg.Plugins.Timeout)

	a := &agent{store: st, client: client}
	if opts.preview {
		a.preview = capture.NewFrameSlot()
	}

	a.app, err = app.New(app.Config{
		Session: checkin.Config{
			Identity:         cfg.Identity,
			Threshold:        cfg.Detection.Threshold,
			TickInterval:     cfg.Detection.TickInterval,
			MaxTickErrors:    cfg.Detection.MaxTickErrors,
			ReferenceTimeout: cfg.Detection.ReferenceTimeout,
			CameraTimeout:    cfg.Camera.OpenTimeout,
			LocateTimeout:    cfg.Location.Timeout,
			Constraints: capture.Constraints{
				Width:  cfg.Camera.Width,
				Height: cfg.Camera.Height,
				Facing: capture.Facing(cfg.Camera.Facing),
			},
		},
		CompanyID:  cfg.CompanyID,
		Camera:     capture.NewCamera(cfg.Camera.DeviceID),
		Detector:   det,
		Attendance: client,
		Locator:    newLocator(cfg, plugins, executor, logger),
		Store:      st,
		Presence:   presence.NewIndicator(client, opts.display, st.Settings(), cfg.Identity, logger),
		Notifier:   newNotifier(cfg, plugins, executor, logger),
		Events:     opts.events,
		Preview:    a.preview,
		Logger:     logger,
		Metrics:    opts.metrics,
	})
	if err != nil {
		det.Close()
		st.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the detector and the journal.
func (a *agent) Close() error {
	return errors.Join(a.app.Close(), a.store.Close())
}

func newDetector(cfg *config.Config, logger *slog.Logger) (detector.Detector, error) {
	switch cfg.Detection.Backend {
	case config.BackendService:
		d, err := detector.NewServiceDetector(cfg.Detection.ServiceCommand, logger)
		if err != nil {
			return nil, fmt.Errorf("starting embedding service: %w", err)
		}
		return d, nil
	default:
		d, err := detector.NewDlibDetector(cfg.Detection.ModelDir)
		if err != nil {
			return nil, fmt.Errorf("loading face models from %s: %w", cfg.Detection.ModelDir, err)
		}
		return d, nil
	}
}

// newLocator tries the configured plugin first and falls back to the
// static position. It returns nil when neither is configured, in which case
// matched check-ins are logged without coordinates.
func newLocator(cfg *config.Config, plugins *plugin.Manager, executor *plugin.Executor, logger *slog.Logger) geo.Locator {
	var chain geo.Chain
	if name := cfg.Location.Plugin; name != "" {
		p, err := plugins.Find(name, plugin.ActionLocate)
		if err != nil {
			logger.Warn("location plugin unavailable", "plugin", name, "error", err)
		} else {
			chain = append(chain, geo.NewPluginLocator(executor, p, nil))
		}
	}
	if cfg.Location.Latitude != nil && cfg.Location.Longitude != nil {
		chain = append(chain, geo.StaticLocator{Coords: geo.Coords{
			Latitude:  *cfg.Location.Latitude,
			Longitude: *cfg.Location.Longitude,
		}})
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

func newNotifier(cfg *config.Config, plugins *plugin.Manager, executor *plugin.Executor, logger *slog.Logger) app.Notifier {
	name := cfg.Plugins.Notify
	if name == "" {
		return nil
	}
	p, err := plugins.Find(name, plugin.ActionNotify)
	if err != nil {
		logger.Warn("notify plugin unavailable", "plugin", name, "error", err)
		return nil
	}
	return app.NewPluginNotifier(executor, p, nil)
}
