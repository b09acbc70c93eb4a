package config

import "time"

// RelayConfig is the top-level configuration.
type RelayConfig struct {
	Server    ServerConfig    `yaml:"server"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Incidents IncidentsConfig `yaml:"incidents"`
	Poller    PollerConfig    `yaml:"poller"`
	Session   SessionConfig   `yaml:"session"`
	Hub       HubConfig       `yaml:"hub"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// PublicURL is the externally reachable base URL, used to derive the
	// OAuth redirect URL when none is configured.
	PublicURL string `yaml:"publicURL"`

	TLS TLSConfig `yaml:"tls"`

	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// TLSConfig enables HTTPS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// OAuthConfig describes the client registration at the identity provider.
// Endpoints not set explicitly are discovered from Issuer.
type OAuthConfig struct {
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"clientID"`
	ClientSecret string   `yaml:"clientSecret"`
	RedirectURL  string   `yaml:"redirectURL"`
	Scopes       []string `yaml:"scopes"`

	AuthURL     string `yaml:"authURL"`
	TokenURL    string `yaml:"tokenURL"`
	UserinfoURL string `yaml:"userinfoURL"`
}

// IncidentsConfig configures the upstream ticketing API.
type IncidentsConfig struct {
	InstanceURL string        `yaml:"instanceURL"`
	Path        string        `yaml:"path"`
	Query       string        `yaml:"query"`
	PageSize    int           `yaml:"pageSize"`
	MaxRecords  int           `yaml:"maxRecords"`
	Timeout     time.Duration `yaml:"timeout"`
}

// PollerConfig configures periodic fetches.
type PollerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interval  time.Duration `yaml:"interval"`
	Immediate bool          `yaml:"immediate"`
}

// SessionConfig bounds session lifetimes.
type SessionConfig struct {
	PendingTTL      time.Duration `yaml:"pendingTTL"`
	IdleTTL         time.Duration `yaml:"idleTTL"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
	RefreshTimeout  time.Duration `yaml:"refreshTimeout"`
}

// HubConfig configures the real-time channel.
type HubConfig struct {
	SendBuffer   int           `yaml:"sendBuffer"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	PingInterval time.Duration `yaml:"pingInterval"`

	// AllowedOrigins restricts browser origins; empty allows any.
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
