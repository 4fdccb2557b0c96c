package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/geo"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Run one check-in from the terminal",
	Long: `Run a single check-in: load the profile photo, open the camera, wait for
a matching face and log attendance. Press Ctrl+C to cancel. The result is
printed as JSON; the command fails unless the face matched.`,
	RunE: runCheckIn,
}

func init() {
	rootCmd.AddCommand(checkinCmd)
}

type checkInOutput struct {
	SessionID      string      `json:"session_id"`
	Outcome        string      `json:"outcome"`
	Message        string      `json:"message"`
	Detail         string      `json:"detail,omitempty"`
	Distance       float64     `json:"distance,omitempty"`
	Coords         *geo.Coords `json:"coords,omitempty"`
	LocationReason string      `json:"location_reason,omitempty"`
	Duration       string      `json:"duration"`
}

func runCheckIn(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ag, err := newAgent(cfg, logger, agentOptions{})
	if err != nil {
		return err
	}
	defer ag.Close()

	res, err := ag.app.CheckIn(ctx)
	if err != nil {
		return err
	}

	out := checkInOutput{
		SessionID:      res.SessionID,
		Outcome:        res.Outcome(),
		Message:        res.Message(),
		Detail:         res.Detail,
		Distance:       res.Distance,
		Coords:         res.Coords,
		LocationReason: string(res.LocationReason),
		Duration:       res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond).String(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}

	if !res.Matched {
		return fmt.Errorf("check-in %s", res.Outcome())
	}
	if res.LocationReason == checkin.ReasonGeolocationUnavailable {
		logger.Warn(res.LocationReason.Message())
	}
	if c, err := ag.app.Get(res.SessionID); err == nil && c.SubmitError != "" {
		return fmt.Errorf("attendance submission failed: %s", c.SubmitError)
	}
	return nil
}
