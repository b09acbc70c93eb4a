package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"incidentrelay/internal/app"
)

var (
	serveDebug      bool
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay",
	Long: `Starts the relay's HTTP and WebSocket server.

Endpoints:
  GET /login       start a login; returns the authorization URL and session ID
  GET /callback    OAuth redirect target
  GET /user        userinfo for ?sessionId=
  GET /incidents   fetch incidents for ?sessionId= and broadcast them
  GET /logout      end the session
  GET /session     session state, used by 'incidentrelay login' to wait
  GET /ws          real-time channel
  GET /health      liveness
  GET /metrics     Prometheus metrics

Configuration is read from ~/.config/incidentrelay/config.yaml unless --config
is given. ${VAR} references in the file are expanded from the environment.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveDebug, serveConfigPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.Run(cmd.Context())
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to the configuration file")
}
