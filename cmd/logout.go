package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"incidentrelay/internal/client"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session on the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, err := resolveSession()
		if err != nil {
			return err
		}

		err = newAPI().Logout(cmd.Context(), sessionID)
		// The saved session is useless either way once the relay rejects it.
		if err == nil || client.IsUnauthorized(err) {
			if sessionFlag == "" {
				if cerr := clearSession(); cerr != nil {
					return cerr
				}
			}
		}
		if err != nil {
			return err
		}

		if !quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
