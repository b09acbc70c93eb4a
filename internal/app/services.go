package app

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"incidentrelay/internal/config"
	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
	"incidentrelay/internal/metrics"
	"incidentrelay/internal/oauth"
	"incidentrelay/internal/poller"
	"incidentrelay/internal/server"
	"incidentrelay/internal/session"
	"incidentrelay/pkg/logging"
	pkgoauth "incidentrelay/pkg/oauth"
)

// Services holds the initialized components of a relay.
type Services struct {
	Auth     *oauth.Service
	Sessions *session.Store
	Fetcher  *incident.Fetcher
	Hub      *hub.Hub
	Poller   *poller.Orchestrator
	Server   *server.Server
}

// InitializeServices builds the relay's service graph from cfg.
func InitializeServices(cfg *config.RelayConfig) (*Services, error) {
	metrics.Register(prometheus.DefaultRegisterer)

	provider := pkgoauth.NewClient(pkgoauth.Config{
		Issuer:       cfg.OAuth.Issuer,
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURL:  cfg.OAuth.RedirectURL,
		Scopes:       cfg.OAuth.Scopes,
		AuthURL:      cfg.OAuth.AuthURL,
		TokenURL:     cfg.OAuth.TokenURL,
		UserinfoURL:  cfg.OAuth.UserinfoURL,
	})
	auth := oauth.NewService(provider)

	sessions := session.NewStore(auth, session.Options{
		PendingTTL:      cfg.Session.PendingTTL,
		IdleTTL:         cfg.Session.IdleTTL,
		CleanupInterval: cfg.Session.CleanupInterval,
		RefreshTimeout:  cfg.Session.RefreshTimeout,
	})

	fetcher := incident.NewFetcher(incident.FetcherConfig{
		InstanceURL: cfg.Incidents.InstanceURL,
		Path:        cfg.Incidents.Path,
		Query:       cfg.Incidents.Query,
		PageSize:    cfg.Incidents.PageSize,
		MaxRecords:  cfg.Incidents.MaxRecords,
		HTTPClient:  &http.Client{Timeout: cfg.Incidents.Timeout},
	})

	h := hub.New()
	orch := poller.New(sessions, fetcher, h, poller.Options{
		Interval:  cfg.Poller.Interval,
		Immediate: cfg.Poller.Immediate,
	})
	if cfg.Poller.Enabled {
		sessions.SetOnStateChange(orch.HandleStateChange)
		logging.Info("Bootstrap", "Background polling enabled every %s", cfg.Poller.Interval)
	} else {
		logging.Info("Bootstrap", "Background polling disabled; incidents are fetched on request only")
	}

	srv := server.New(cfg.Server, server.Deps{
		Sessions:  sessions,
		Auth:      auth,
		Incidents: orch,
		WebSocket: h.ServeWS(hub.WSConfig{
			SendBuffer:   cfg.Hub.SendBuffer,
			WriteTimeout: cfg.Hub.WriteTimeout,
			PingInterval: cfg.Hub.PingInterval,
			CheckOrigin:  originChecker(cfg.Hub.AllowedOrigins),
		}),
		Metrics: metrics.Handler(prometheus.DefaultGatherer),
	})

	return &Services{
		Auth:     auth,
		Sessions: sessions,
		Fetcher:  fetcher,
		Hub:      h,
		Poller:   orch,
		Server:   srv,
	}, nil
}

// Close stops background work. It is safe to call once the server has stopped.
func (s *Services) Close() {
	s.Poller.Stop()
	s.Hub.CloseAll()
	s.Sessions.Stop()
}

// originChecker returns nil (any origin) when allowed is empty. Requests
// without an Origin header come from non-browser clients and are accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(allowed))
	for _, o := range allowed {
		normalized = append(normalized, strings.ToLower(strings.TrimSuffix(o, "/")))
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return false
		}
		ok := slices.Contains(normalized, strings.ToLower(u.Scheme+"://"+u.Host))
		if !ok {
			logging.Warn("Hub", "Rejected WebSocket origin %q", origin)
		}
		return ok
	}
}
