package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"incidentrelay/internal/formatting"
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Fetch your incidents through the relay",
	Long: `Fetches incidents for the current session. The relay also broadcasts the
result to every connected watcher.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFormatter()
		if err != nil {
			return err
		}
		sessionID, err := resolveSession()
		if err != nil {
			return err
		}

		records, err := newAPI().Incidents(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		return f.FormatIncidents(cmd.OutOrStdout(), records)
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Show the identity provider's profile for the session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := newFormatter()
		if err != nil {
			return err
		}
		sessionID, err := resolveSession()
		if err != nil {
			return err
		}

		info, err := newAPI().User(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		return f.FormatUser(cmd.OutOrStdout(), info)
	},
}

func init() {
	rootCmd.AddCommand(incidentsCmd)
	rootCmd.AddCommand(userCmd)
}

// newFormatter builds a formatter from --output and --quiet. Colors are only
// used when stdout is a terminal.
func newFormatter() (formatting.Formatter, error) {
	format, err := formatting.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return formatting.New(formatting.Options{
		Format: format,
		Quiet:  quiet,
		Color:  term.IsTerminal(int(os.Stdout.Fd())),
	}), nil
}
