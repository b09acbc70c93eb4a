package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"incidentrelay/internal/client"
	"incidentrelay/internal/hub"
	"incidentrelay/pkg/logging"
)

var (
	watchMaxAttempts int
	watchFetch       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow incident updates in real time",
	Long: `Connects to the relay's real-time channel and prints every incident update
and notification as it arrives. The connection is re-established with
exponential backoff when it drops.

With --fetch, an initial fetch is requested for the current session so that
the first update arrives immediately.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().IntVar(&watchMaxAttempts, "max-attempts", 0, "Give up after this many consecutive failed connection attempts (0 retries forever)")
	watchCmd.Flags().BoolVar(&watchFetch, "fetch", false, "Request an incident fetch for the current session after connecting")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	f, err := newFormatter()
	if err != nil {
		return err
	}

	wsURL, err := client.WebSocketURL(serverURL)
	if err != nil {
		return err
	}

	var sessionID string
	if watchFetch {
		if sessionID, err = resolveSession(); err != nil {
			return err
		}
	}

	status := func(format string, args ...any) {
		if !quiet {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	watcher := client.NewWatcher(client.WatcherConfig{
		URL:         wsURL,
		MaxAttempts: watchMaxAttempts,
		InsecureTLS: insecure,
		OnState: func(s client.ConnState) {
			switch s {
			case client.StateConnected:
				status("%s Connected to %s", text.FgGreen.Sprint("●"), wsURL)
				if sessionID != "" {
					go func() {
						if _, err := newAPI().Incidents(ctx, sessionID); err != nil {
							status("%s Initial fetch failed: %v", text.FgRed.Sprint("✕"), err)
						}
					}()
				}
			case client.StateConnecting:
				logging.Debug("Watch", "Connecting to %s", wsURL)
			case client.StateDisconnected:
				if ctx.Err() == nil {
					status("%s Disconnected, reconnecting...", text.FgYellow.Sprint("●"))
				}
			}
		},
		OnMessage: func(m client.Message) {
			var err error
			switch m.Type {
			case hub.EventUpdateIncidents:
				records, derr := m.Records()
				if derr != nil {
					err = derr
					break
				}
				if !quiet && outputFormat == "table" {
					fmt.Fprintf(out, "\n%s\n", time.Now().Format(time.TimeOnly))
				}
				err = f.FormatIncidents(out, records)
			case hub.EventNotification:
				n, derr := m.Notification()
				if derr != nil {
					err = derr
					break
				}
				err = f.FormatNotification(out, n)
			default:
				logging.Debug("Watch", "Ignoring message of type %q", m.Type)
			}
			if err != nil {
				logging.Warn("Watch", "Could not render %s message: %v", m.Type, err)
			}
		},
	})

	return watcher.Run(ctx)
}
