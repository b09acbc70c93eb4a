package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"incidentrelay/internal/config"
	"incidentrelay/internal/metrics"
	"incidentrelay/pkg/logging"
)

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Sessions  SessionStore
	Auth      AuthService
	Incidents IncidentSource

	// WebSocket serves the real-time channel at /ws.
	WebSocket http.Handler

	// Metrics serves /metrics. It is not mounted when nil.
	Metrics http.Handler
}

// Server is the relay's HTTP server.
type Server struct {
	cfg       config.ServerConfig
	sessions  SessionStore
	auth      AuthService
	incidents IncidentSource
	ws        http.Handler
	metrics   http.Handler

	httpServer *http.Server
}

// New creates a server. Call Handler to obtain the routes or Start to listen.
func New(cfg config.ServerConfig, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  deps.Sessions,
		auth:      deps.Auth,
		incidents: deps.Incidents,
		ws:        deps.WebSocket,
		metrics:   deps.Metrics,
	}
}

// Handler returns the relay's routes wrapped in the common middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "GET /login", http.HandlerFunc(s.handleLogin))
	s.route(mux, "GET /callback", http.HandlerFunc(s.handleCallback))
	s.route(mux, "GET /user", http.HandlerFunc(s.handleUser))
	s.route(mux, "GET /incidents", http.HandlerFunc(s.handleIncidents))
	s.route(mux, "GET /logout", http.HandlerFunc(s.handleLogout))
	s.route(mux, "GET /session", http.HandlerFunc(s.handleSession))
	s.route(mux, "GET /health", http.HandlerFunc(handleHealth))

	if s.ws != nil {
		mux.Handle("GET /ws", s.ws)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return securityHeaders(mux)
}

func (s *Server) route(mux *http.ServeMux, pattern string, h http.Handler) {
	mux.Handle(pattern, instrument(pattern, h))
}

// Start listens until ctx is cancelled and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	if s.cfg.TLS.Enabled {
		certs, err := NewCertReloader(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		if err != nil {
			return err
		}
		if err := certs.Start(); err != nil {
			return err
		}
		defer certs.Stop()

		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: certs.GetCertificate,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			logging.Info("Server", "Listening on https://%s", addr)
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			logging.Info("Server", "Listening on http://%s", addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server on %s failed: %w", addr, err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logging.Info("Server", "Shutting down HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// securityHeaders sets recommended security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		logging.Debug("Server", "%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
