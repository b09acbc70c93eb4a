package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"incidentrelay/internal/incident"
	"incidentrelay/internal/session"
	"incidentrelay/pkg/logging"
)

// SessionStore is the session store as seen by the HTTP surface.
type SessionStore interface {
	CreatePending() (id, challenge string, err error)
	Exchange(ctx context.Context, id, code string) (session.View, error)
	Get(id string) (session.View, error)
	AccessToken(id string) (string, error)
	Revoke(id string) error
}

// AuthService builds authorization URLs and proxies userinfo.
type AuthService interface {
	AuthCodeURL(ctx context.Context, state, codeChallenge string) (string, error)
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)
}

// IncidentSource runs an on-demand fetch/broadcast cycle for a session.
type IncidentSource interface {
	Refresh(ctx context.Context, sessionID string) (*incident.Snapshot, error)
}

type loginResponse struct {
	AuthURL   string `json:"authUrl"`
	SessionID string `json:"sessionId"`
}

type messageResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Server", "Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// handleLogin starts a login and returns the authorization URL.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	id, challenge, err := s.sessions.CreatePending()
	if err != nil {
		logging.Error("Server", err, "Failed to create pending session")
		writeError(w, http.StatusInternalServerError, "Could not start login.")
		return
	}

	authURL, err := s.auth.AuthCodeURL(r.Context(), id, challenge)
	if err != nil {
		_ = s.sessions.Revoke(id)
		logging.Error("Server", err, "Failed to build authorization URL")
		writeError(w, http.StatusInternalServerError, "Could not start login.")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{AuthURL: authURL, SessionID: id})
}

// handleCallback completes a login by exchanging the authorization code.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("state")

	if providerErr := q.Get("error"); providerErr != "" {
		logging.Warn("Server", "Identity provider returned error=%s for session=%s",
			providerErr, logging.TruncateSessionID(id))
		writeError(w, http.StatusBadRequest, "Authorization failed.")
		return
	}

	code := q.Get("code")
	if code == "" || id == "" {
		writeError(w, http.StatusBadRequest, "Authorization failed.")
		return
	}

	_, err := s.sessions.Exchange(r.Context(), id, code)
	switch {
	case err == nil:
		logging.Info("Server", "Login completed for session=%s", logging.TruncateSessionID(id))
		writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful", SessionID: id})
	case errors.Is(err, session.ErrUnknownSession),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrCodeAlreadyUsed):
		logging.Warn("Server", "Rejected callback for session=%s: %v", logging.TruncateSessionID(id), err)
		writeError(w, http.StatusBadRequest, "Authorization failed.")
	default:
		logging.Error("Server", err, "Token exchange failed for session=%s", logging.TruncateSessionID(id))
		writeError(w, http.StatusInternalServerError, "Authentication failed.")
	}
}

// handleUser proxies the provider's userinfo for the session's access token.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")

	token, err := s.sessions.AccessToken(id)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	info, err := s.auth.UserInfo(r.Context(), token)
	if err != nil {
		logging.Error("Server", err, "Failed to fetch user info for session=%s", logging.TruncateSessionID(id))
		writeError(w, http.StatusInternalServerError, "Error fetching user info")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleIncidents fetches incidents for the session, returns them and
// broadcasts them to every live connection.
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")

	snap, err := s.incidents.Refresh(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, snap.Records())
	case errors.Is(err, session.ErrUnknownSession),
		errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	default:
		logging.Error("Server", err, "Incident fetch failed for session=%s", logging.TruncateSessionID(id))
		writeError(w, http.StatusInternalServerError, "Error fetching incidents")
	}
}

// handleSession reports the session's lifecycle state. Clients poll it while
// the user completes the login in a browser.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	v, err := s.sessions.Get(r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleLogout revokes the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")

	if err := s.sessions.Revoke(id); err != nil {
		writeError(w, http.StatusUnauthorized, "User not logged in")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully."})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
