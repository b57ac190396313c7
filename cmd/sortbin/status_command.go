package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"sortbin/internal/api"
	"sortbin/internal/config"
	"sortbin/internal/daemon"
	"sortbin/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var checks bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, session, and device status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			client, err := ctx.newClient()
			if err != nil {
				return err
			}

			status, err := client.Status(cmd.Context())
			if err != nil && !errors.Is(err, api.ErrDaemonUnavailable) {
				return wrapClientError(err, ctx.apiAddress())
			}
			if asJSON {
				if status == nil {
					return wrapClientError(err, ctx.apiAddress())
				}
				return writeJSON(cmd, status)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			printSection(stdout, "Daemon", colorize)
			if status == nil {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, offlineDetail(cfg), colorize))
			} else {
				writeDaemonLines(stdout, status, colorize)
			}
			fmt.Fprintln(stdout)

			if status != nil {
				printSection(stdout, "Session", colorize)
				writeSessionLines(stdout, status.Session, colorize)
				fmt.Fprintln(stdout)
			}

			if checks {
				printSection(stdout, "Readiness", colorize)
				for _, result := range preflight.RunAll(cmd.Context(), cfg, false) {
					kind := statusOK
					if !result.Passed {
						kind = statusError
					}
					fmt.Fprintln(stdout, renderStatusLine(result.Name, kind, result.Detail, colorize))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status payload")
	cmd.Flags().BoolVar(&checks, "checks", false, "Also run readiness checks against the configured services")
	return cmd
}

// offlineDetail explains an unreachable daemon using its PID file.
func offlineDetail(cfg *config.Config) string {
	if cfg == nil {
		return "Not running"
	}
	pid, err := daemon.ReadPID(cfg.PIDPath())
	switch {
	case err != nil:
		return fmt.Sprintf("Not reachable (%v)", err)
	case pid == 0:
		return "Not running"
	case daemon.ProcessAlive(pid):
		return fmt.Sprintf("Process %d alive but API not reachable at %s", pid, cfg.Paths.APIBind)
	default:
		return fmt.Sprintf("Not running (stale pid file for %d)", pid)
	}
}

func writeDaemonLines(w io.Writer, status *api.DaemonStatus, colorize bool) {
	kind, detail := statusWarn, "Started but not serving"
	if status.Running {
		kind, detail = statusOK, fmt.Sprintf("Running (pid %d)", status.PID)
	}
	fmt.Fprintln(w, renderStatusLine("Daemon", kind, detail, colorize))
	fmt.Fprintln(w, renderStatusLine("Ledger", statusInfo,
		fmt.Sprintf("%d users, %d disposals (%s)", status.Users, status.Disposals, status.LedgerPath), colorize))

	dev := status.Session.Device
	switch {
	case dev == nil:
		fmt.Fprintln(w, renderStatusLine("Device", statusInfo, "No delivery stats", colorize))
	case dev.Connected:
		fmt.Fprintln(w, renderStatusLine("Device", statusOK, deviceDetail(dev), colorize))
	default:
		fmt.Fprintln(w, renderStatusLine("Device", statusWarn, deviceDetail(dev), colorize))
	}
}

func deviceDetail(dev *api.DeviceStatus) string {
	connection := "Disconnected"
	if dev.Connected {
		connection = "Connected"
	}
	detail := fmt.Sprintf("%s; sent %d, queued %d, failed %d, dropped %d", connection, dev.Sent, dev.Queued, dev.Failed, dev.Dropped)
	if dev.LastError != "" {
		detail += "; last error: " + dev.LastError
	}
	return detail
}

func writeSessionLines(w io.Writer, s api.Session, colorize bool) {
	fmt.Fprintln(w, renderStatusLine("State", statusInfo, s.State, colorize))
	if s.SessionID != "" {
		fmt.Fprintln(w, renderStatusLine("Session", statusInfo, s.SessionID+startedSuffix(s.StartedAt), colorize))
	}
	if s.Transcript != "" {
		fmt.Fprintln(w, renderStatusLine("Transcript", statusInfo, s.Transcript, colorize))
	}
	if s.Identity != "" {
		kind := statusOK
		if s.User == nil {
			kind = statusWarn
		}
		fmt.Fprintln(w, renderStatusLine("Identity", kind, strings.ReplaceAll(s.Identity, "\n", ", "), colorize))
	}
	if s.User != nil {
		fmt.Fprintln(w, renderStatusLine("Score", statusInfo,
			fmt.Sprintf("%s over %d disposals", s.User.ScoreDisplay, s.User.CompleteTimes), colorize))
	}
	if s.Processing {
		fmt.Fprintln(w, renderStatusLine("Image", statusInfo, "Processing", colorize))
	}
	if s.LastDetectedItem != "" {
		fmt.Fprintln(w, renderStatusLine("Item", statusInfo, s.LastDetectedItem+" ("+s.LastDetectedCategory+")", colorize))
	}
	if s.Warning != "" {
		fmt.Fprintln(w, renderStatusLine("Reminder", statusWarn, s.Warning, colorize))
	}
	if s.DetectionFailure != "" {
		fmt.Fprintln(w, renderStatusLine("Detection", statusWarn, s.DetectionFailure, colorize))
	}
	if s.HasReceivedImage {
		fmt.Fprintln(w, renderStatusLine("Awaiting close", statusInfo, yesNo(s.AwaitingCloseEvent), colorize))
	}
	if s.ProximityText != "" {
		fmt.Fprintln(w, renderStatusLine("Proximity", statusInfo, s.ProximityText, colorize))
	}
	if s.LastOutcome != "" {
		fmt.Fprintln(w, renderStatusLine("Last outcome", statusInfo, s.LastOutcome, colorize))
	}
	if len(s.Items) > 0 {
		rows := make([][]string, 0, len(s.Items))
		for _, item := range s.Items {
			rows = append(rows, []string{item.Item, item.Category})
		}
		fmt.Fprint(w, renderTable([]string{"Item", "Category"}, rows, nil))
	}
}

func startedSuffix(startedAt string) string {
	if startedAt == "" {
		return ""
	}
	return " (started " + startedAt + ")"
}
