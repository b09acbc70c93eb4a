package config

import "time"

const (
	// DefaultPort is the relay's listen port.
	DefaultPort = 4000

	// DefaultCallbackPath is where the identity provider redirects after login.
	DefaultCallbackPath = "/callback"
)

// DefaultScopes are requested when none are configured. offline_access asks
// for a refresh token.
var DefaultScopes = []string{"openid", "profile", "offline_access"}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() RelayConfig {
	return RelayConfig{
		Server: ServerConfig{
			Host:              "localhost",
			Port:              DefaultPort,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		OAuth: OAuthConfig{
			Scopes: append([]string(nil), DefaultScopes...),
		},
		Incidents: IncidentsConfig{
			Path:       "/api/now/table/incident",
			PageSize:   100,
			MaxRecords: 1000,
			Timeout:    30 * time.Second,
		},
		Poller: PollerConfig{
			Enabled:   true,
			Interval:  60 * time.Second,
			Immediate: true,
		},
		Session: SessionConfig{
			PendingTTL:      10 * time.Minute,
			IdleTTL:         24 * time.Hour,
			CleanupInterval: time.Minute,
			RefreshTimeout:  30 * time.Second,
		},
		Hub: HubConfig{
			SendBuffer:   8,
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
