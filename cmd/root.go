package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"incidentrelay/internal/client"
	"incidentrelay/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates there is no valid session; run login.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the login flow did not complete.
	ExitCodeAuthFailed = 3
)

// DefaultServer is the relay URL used when neither --server nor
// INCIDENTRELAY_SERVER is set.
const DefaultServer = "https://localhost:4000"

// AuthRequiredError is returned when a command needs a session and none is
// available.
type AuthRequiredError struct {
	Server string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("not logged in to %s; run 'incidentrelay login' first", e.Server)
}

// AuthFailedError is returned when the browser login did not complete.
type AuthFailedError struct {
	Reason error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("login failed: %v", e.Reason)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// Global flags shared by the client commands.
var (
	serverURL    string
	insecure     bool
	sessionFlag  string
	outputFormat string
	quiet        bool
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "incidentrelay",
	Short: "Relay incident updates from your ticketing system to connected clients",
	Long: `incidentrelay logs users in through their identity provider with OAuth2 and
PKCE, fetches their incidents on their behalf and pushes updates to every
connected client over WebSocket.

Run 'incidentrelay serve' to start the relay, then 'incidentrelay login' and
'incidentrelay watch' from a terminal to follow incidents live.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Client commands only log problems; serve re-initializes from its config.
		level := logging.LevelWarn
		if verbose {
			level = logging.LevelDebug
		}
		logging.Init(level, logging.FormatText, os.Stderr)
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command with a context that is cancelled on SIGINT
// or SIGTERM, and exits with a semantic exit code on failure.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "incidentrelay version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	// The relay no longer knows the session, or it expired.
	if client.IsUnauthorized(err) {
		return ExitCodeAuthRequired
	}

	return ExitCodeError
}

func defaultServer() string {
	if s := os.Getenv("INCIDENTRELAY_SERVER"); s != "" {
		return s
	}
	return DefaultServer
}

// newAPI builds a relay client from the global flags.
func newAPI() *client.API {
	var opts []client.APIOption
	if insecure {
		opts = append(opts, client.WithInsecureTLS())
	}
	return client.NewAPI(serverURL, opts...)
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverURL, "server", defaultServer(), "Relay base URL (env INCIDENTRELAY_SERVER)")
	pf.BoolVar(&insecure, "insecure", false, "Skip TLS certificate verification (self-signed development relays)")
	pf.StringVar(&sessionFlag, "session", "", "Session ID to use instead of the one saved by login")
	pf.StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
	pf.BoolVarP(&quiet, "quiet", "q", false, "Suppress decorative output")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log debug details to stderr")
}
