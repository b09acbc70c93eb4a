package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"incidentrelay/internal/client"
)

const (
	// DefaultLoginTimeout bounds how long login waits for the browser flow.
	DefaultLoginTimeout = 5 * time.Minute
	// DefaultLoginPollInterval is how often the session state is checked.
	DefaultLoginPollInterval = time.Second
)

var (
	loginNoBrowser bool
	loginTimeout   time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the relay through your identity provider",
	Long: `Starts a login on the relay, opens the authorization URL in your browser and
waits until the relay has exchanged the authorization code for tokens. The
session ID is saved so that other commands can use it.

Examples:
  incidentrelay login
  incidentrelay login --server https://relay.example.com
  incidentrelay login --no-browser   # print the URL instead of opening it`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().BoolVar(&loginNoBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", DefaultLoginTimeout, "How long to wait for the browser login to complete")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	api := newAPI()

	resp, err := api.Login(ctx)
	if err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}

	if loginNoBrowser {
		fmt.Fprintf(out, "Open this URL in your browser to log in:\n\n  %s\n\n", resp.AuthURL)
	} else if err := openBrowser(resp.AuthURL); err != nil {
		fmt.Fprintf(out, "Could not open a browser (%v). Open this URL to log in:\n\n  %s\n\n", err, resp.AuthURL)
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var s *spinner.Spinner
	if !quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " Waiting for login to complete in the browser..."
		s.Start()
	}

	err = api.WaitForLogin(waitCtx, resp.SessionID, DefaultLoginPollInterval)
	if s != nil {
		s.Stop()
	}
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return &AuthFailedError{Reason: fmt.Errorf("timed out after %s", loginTimeout)}
		case ctx.Err() != nil:
			return ctx.Err()
		case client.IsUnauthorized(err):
			return &AuthFailedError{Reason: errors.New("the relay discarded the session; check the relay logs")}
		default:
			return &AuthFailedError{Reason: err}
		}
	}

	path, err := saveSession(savedSession{Server: api.BaseURL(), SessionID: resp.SessionID})
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprintf(out, "%s Logged in. Session saved to %s\n", text.FgGreen.Sprint("✓"), path)
	}
	return nil
}
