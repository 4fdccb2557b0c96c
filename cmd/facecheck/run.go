package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/facecheck/internal/app"
	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/observe"
	"github.com/ayusman/facecheck/internal/server"
	"github.com/ayusman/facecheck/internal/tray"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tray agent and the local API",
	Long: `Start the check-in agent. It shows the attendance status in the system
tray, serves the local HTTP API (check-ins, preview stream, event stream and
metrics) and runs a check-in whenever one is requested.`,
	RunE: runAgent,
}

var (
	runNoTray    bool
	runStaticDir string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runNoTray, "no-tray", false, "do not show the system tray indicator")
	runCmd.Flags().StringVar(&runStaticDir, "static", "", "directory of static files served at /")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("initialising metrics: %w", err)
	}
	defer shutdownMetrics(context.Background())

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	hub := server.NewHub(logger)
	events := app.Publishers{hub}

	opts := agentOptions{metrics: metrics, preview: true}
	var tr *tray.Tray
	if cfg.Tray.Enabled && !runNoTray {
		tr = tray.New()
		opts.display = tr
		events = append(events, trayEvents(tr))
	}
	opts.events = events

	ag, err := newAgent(cfg, logger, opts)
	if err != nil {
		return err
	}
	defer ag.Close()

	srv := server.New(server.Config{
		Service:   ag.app,
		Preview:   ag.preview,
		Events:    hub,
		Metrics:   metrics,
		StaticDir: runStaticDir,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ag.app.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Server.ListenAddr) })

	logger.Info("facecheck agent started", "identity", cfg.Identity, "listen", cfg.Server.ListenAddr, "version", version)

	if tr != nil {
		tr.OnCheckIn(func() {
			if _, err := ag.app.Start(gctx); err != nil {
				logger.Warn("check-in not started", "error", err)
			}
		})
		tr.OnCancel(func() {
			if err := ag.app.Cancel(); err != nil {
				logger.Debug("nothing to cancel", "error", err)
			}
		})
		tr.OnDashboard(func() {
			if err := openBrowser(dashboardURL(cfg.Server.ListenAddr)); err != nil {
				logger.Warn("opening dashboard failed", "error", err)
			}
		})
		tr.OnQuit(stop)

		go func() {
			<-gctx.Done()
			tr.Quit()
		}()
		// The tray owns the main thread until it quits.
		tr.Run()
		stop()
	}

	err = g.Wait()
	logger.Info("facecheck agent stopped")
	return err
}

// trayEvents mirrors check-in progress in the tray menu.
func trayEvents(tr *tray.Tray) app.Publisher {
	return app.PublisherFunc(func(e app.Event) {
		switch e.Type {
		case app.EventState:
			tr.SetActive(e.State != checkin.StateClosed)
		case app.EventResult:
			tr.SetActive(false)
			tr.SetLastResult(e.Message)
		}
	})
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", url)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.Command("xdg-open", url)
	}
	return c.Start()
}
