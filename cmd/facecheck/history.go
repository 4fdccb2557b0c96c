package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/store"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent check-ins",
	RunE:  runHistory,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the attendance status and the last check-in",
	Long: `Show the presence color (green: checked in, red: checked out) and the last
journaled check-in. With --refresh the color is fetched from the attendance
server; otherwise the cached value is shown.`,
	RunE: runStatus,
}

var (
	historyLimit  int
	statusRefresh bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statusCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of check-ins to show (0 for all)")
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "fetch the status from the attendance server")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.CheckIns().List(historyLimit)
	if err != nil {
		return fmt.Errorf("listing check-ins: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No check-ins yet.")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-20s  %-28s  %-8s  %-10s  %s\n", "TIME", "OUTCOME", "DISTANCE", "SUBMITTED", "ID")
	for _, c := range list {
		fmt.Fprintf(w, "%-20s  %-28s  %-8.3f  %-10s  %s\n",
			c.EndedAt.Local().Format(time.DateTime), outcome(c), c.Distance, submitted(c), c.ID)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	w := cmd.OutOrStdout()

	color, err := st.Settings().Get(store.SettingPresenceColor)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if statusRefresh {
		client, err := attendance.NewClient(cfg.Attendance.URL, cfg.Attendance.SessionID, cfg.Attendance.Timeout)
		if err != nil {
			return err
		}
		c, err := client.StatusColor(cmd.Context(), cfg.Identity)
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}
		color = string(c)
		if err := st.Settings().Set(store.SettingPresenceColor, color); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "Status:  %s\n", presenceText(attendance.Color(color)))

	list, err := st.CheckIns().List(1)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(w, "Last:    none")
		return nil
	}
	c := list[0]
	fmt.Fprintf(w, "Last:    %s at %s (%s)\n", outcome(c), c.EndedAt.Local().Format(time.DateTime), submitted(c))
	return nil
}

func outcome(c *store.CheckIn) string {
	if c.Matched {
		return "matched"
	}
	if c.Detail != "" {
		return c.Reason + ": " + c.Detail
	}
	return c.Reason
}

func submitted(c *store.CheckIn) string {
	switch {
	case c.Submitted:
		return "yes"
	case c.SubmitError != "":
		return "failed"
	}
	return "-"
}

func presenceText(c attendance.Color) string {
	switch c {
	case attendance.ColorCheckedIn:
		return "checked in"
	case attendance.ColorCheckedOut:
		return "checked out"
	}
	return "unknown"
}
