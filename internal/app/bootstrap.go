package app

import (
	"context"
	"fmt"
	"net/http"

	"incidentrelay/internal/config"
	"incidentrelay/pkg/logging"
)

// Application represents the relay process: its configuration and the
// services built from it.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "/etc/incidentrelay/config.yaml")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration, initializes logging and builds all
// services. Nothing listens until Run is called.
func NewApplication(cfg *Config) (*Application, error) {
	// Bootstrap logging so that config errors are visible.
	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logging.Init(level, logging.FormatText, cfg.LogOutput)

	if cfg.RelayConfig == nil {
		path := cfg.ConfigPath
		if path == "" {
			var err error
			path, err = config.DefaultConfigPath()
			if err != nil {
				return nil, fmt.Errorf("failed to determine config path: %w", err)
			}
		}

		relayCfg, err := config.LoadConfig(path)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration from %s", path)
			return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
		logging.Info("Bootstrap", "Loaded configuration from %s", path)
		cfg.RelayConfig = &relayCfg
	}

	if err := cfg.RelayConfig.Validate(); err != nil {
		return nil, err
	}

	// Re-initialize with the configured level and format now that we have them.
	if !cfg.Debug {
		level = logging.ParseLevel(cfg.RelayConfig.Logging.Level)
	}
	logging.Init(level, logging.Format(cfg.RelayConfig.Logging.Format), cfg.LogOutput)

	services, err := InitializeServices(cfg.RelayConfig)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Handler returns the relay's HTTP routes without listening.
func (a *Application) Handler() http.Handler {
	return a.services.Server.Handler()
}

// Services exposes the wired services.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the server fails, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	return runServer(ctx, a.services)
}
