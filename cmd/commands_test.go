package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"incidentrelay/internal/hub"
	"incidentrelay/internal/incident"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// fakeRelay serves the relay routes the CLI talks to.
type fakeRelay struct {
	*httptest.Server
	hub       *hub.Hub
	pending   atomic.Bool
	loggedOut atomic.Bool
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	r := &fakeRelay{hub: hub.New()}

	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	authorized := func(w http.ResponseWriter, req *http.Request) bool {
		if req.URL.Query().Get("sessionId") != "S1" || r.loggedOut.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			return false
		}
		return true
	}

	mux.HandleFunc("GET /login", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"authUrl": "https://idp.example.com/authorize?state=S1", "sessionId": "S1"})
	})
	mux.HandleFunc("GET /session", func(w http.ResponseWriter, req *http.Request) {
		if !authorized(w, req) {
			return
		}
		state := "AUTHENTICATED"
		if r.pending.Load() {
			state = "PENDING"
		}
		writeJSON(w, http.StatusOK, map[string]string{"sessionId": "S1", "state": state})
	})
	mux.HandleFunc("GET /incidents", func(w http.ResponseWriter, req *http.Request) {
		if !authorized(w, req) {
			return
		}
		writeJSON(w, http.StatusOK, []incident.Record{{SysID: "a1", ShortDescription: "Email down", State: "New", Priority: "1", OpenedAt: "2024-01-01T00:00:00.000Z"}})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, req *http.Request) {
		if !authorized(w, req) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sub": "u1", "email": "ops@example.com"})
	})
	mux.HandleFunc("GET /logout", func(w http.ResponseWriter, req *http.Request) {
		if !authorized(w, req) {
			return
		}
		r.loggedOut.Store(true)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully."})
	})
	mux.Handle("GET /ws", r.hub.ServeWS(hub.WSConfig{}))

	r.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		r.hub.CloseAll()
		r.Close()
	})
	return r
}

// setupCLI points the session file at a temp dir and stubs the browser.
func setupCLI(t *testing.T) (sessionPath string, opened *[]string) {
	t.Helper()
	sessionPath = filepath.Join(t.TempDir(), "session.yaml")

	origPath, origBrowser := sessionFilePath, openBrowser
	t.Cleanup(func() {
		sessionFilePath, openBrowser = origPath, origBrowser
	})

	sessionFilePath = func() (string, error) { return sessionPath, nil }
	var urls []string
	openBrowser = func(url string) error {
		urls = append(urls, url)
		return nil
	}
	return sessionPath, &urls
}

func runCLI(ctx context.Context, out io.Writer, args ...string) error {
	sessionFlag, outputFormat, quiet, verbose, insecure = "", "table", false, false, false
	loginNoBrowser, loginTimeout = false, DefaultLoginTimeout
	watchFetch, watchMaxAttempts = false, 0

	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func TestLoginIncidentsLogout(t *testing.T) {
	relay := newFakeRelay(t)
	sessionPath, opened := setupCLI(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runCLI(ctx, &out, "login", "--server", relay.URL, "-q"))
	require.Len(t, *opened, 1)
	assert.Contains(t, (*opened)[0], "https://idp.example.com/authorize")

	saved, err := loadSession()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "S1", saved.SessionID)
	assert.Equal(t, relay.URL, saved.Server)

	out.Reset()
	require.NoError(t, runCLI(ctx, &out, "incidents", "--server", relay.URL, "-o", "json"))
	var records []incident.Record
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].SysID)

	out.Reset()
	require.NoError(t, runCLI(ctx, &out, "user", "--server", relay.URL, "-o", "json"))
	assert.Contains(t, out.String(), "ops@example.com")

	out.Reset()
	require.NoError(t, runCLI(ctx, &out, "logout", "--server", relay.URL))
	assert.Equal(t, "Logged out successfully.\n", out.String())
	_, err = os.Stat(sessionPath)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	err = runCLI(ctx, &out, "incidents", "--server", relay.URL)
	var authRequired *AuthRequiredError
	require.ErrorAs(t, err, &authRequired)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestLogin_NoBrowserPrintsURL(t *testing.T) {
	relay := newFakeRelay(t)
	_, opened := setupCLI(t)

	var out bytes.Buffer
	require.NoError(t, runCLI(context.Background(), &out, "login", "--server", relay.URL, "--no-browser", "-q"))
	assert.Empty(t, *opened)
	assert.Contains(t, out.String(), "https://idp.example.com/authorize?state=S1")
}

func TestLogin_Timeout(t *testing.T) {
	relay := newFakeRelay(t)
	relay.pending.Store(true)
	sessionPath, _ := setupCLI(t)

	var out bytes.Buffer
	err := runCLI(context.Background(), &out, "login", "--server", relay.URL, "--timeout", "50ms", "-q")
	var failed *AuthFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, ExitCodeAuthFailed, getExitCode(err))

	_, statErr := os.Stat(sessionPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "nothing saved on failure")
}

func TestIncidents_ExplicitSessionAndRejected(t *testing.T) {
	relay := newFakeRelay(t)
	setupCLI(t)

	var out bytes.Buffer
	err := runCLI(context.Background(), &out, "incidents", "--server", relay.URL, "--session", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(err))
}

func TestIncidents_SavedSessionForOtherServerIgnored(t *testing.T) {
	relay := newFakeRelay(t)
	setupCLI(t)

	_, err := saveSession(savedSession{Server: "https://other.example.com", SessionID: "S1"})
	require.NoError(t, err)

	var out bytes.Buffer
	err = runCLI(context.Background(), &out, "incidents", "--server", relay.URL)
	var authRequired *AuthRequiredError
	assert.ErrorAs(t, err, &authRequired)
}

func TestIncidents_InvalidOutputFormat(t *testing.T) {
	relay := newFakeRelay(t)
	setupCLI(t)

	var out bytes.Buffer
	err := runCLI(context.Background(), &out, "incidents", "--server", relay.URL, "--session", "S1", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestWatch_PrintsUpdates(t *testing.T) {
	relay := newFakeRelay(t)
	setupCLI(t)

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runCLI(ctx, out, "watch", "--server", relay.URL, "-o", "json", "-q") }()

	require.Eventually(t, func() bool { return relay.hub.Count() == 1 }, 3*time.Second, 10*time.Millisecond)

	relay.hub.Broadcast(hub.UpdateIncidents([]incident.Record{{SysID: "z9"}}))
	relay.hub.Broadcast(hub.Notify(hub.Notification{Title: "ServiceNow", Body: "Updated Incidents: 1", Count: 1}))

	require.Eventually(t, func() bool {
		s := out.String()
		return bytes.Contains([]byte(s), []byte(`"z9"`)) && bytes.Contains([]byte(s), []byte("Updated Incidents: 1"))
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestSameServer(t *testing.T) {
	assert.True(t, sameServer("https://Relay.example.com/", "https://relay.example.com"))
	assert.False(t, sameServer("https://relay.example.com", "https://other.example.com"))
}
