package server

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"incidentrelay/pkg/logging"
)

const (
	// DefaultCertPollInterval is the fallback polling interval when fsnotify
	// cannot watch the certificate directory.
	DefaultCertPollInterval = 30 * time.Second

	// DefaultDebounceInterval is the time to wait after the last file change
	// before reloading, so that cert and key rotated together load as a pair.
	DefaultDebounceInterval = 500 * time.Millisecond
)

// CertReloader serves the relay's TLS certificate and reloads it when the
// files change on disk. A failed reload keeps the previous certificate.
type CertReloader struct {
	certFile string
	keyFile  string
	poll     time.Duration
	debounce time.Duration

	certMu sync.RWMutex
	cert   *tls.Certificate

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	fsWatcher *fsnotify.Watcher
	modTimes  map[string]time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	// onReload is called after every successful reload.
	onReload func()
}

// NewCertReloader loads the key pair once. It fails if the initial load fails.
func NewCertReloader(certFile, keyFile string) (*CertReloader, error) {
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		poll:     DefaultCertPollInterval,
		debounce: DefaultDebounceInterval,
		modTimes: make(map[string]time.Time),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.certMu.RLock()
	defer r.certMu.RUnlock()
	return r.cert, nil
}

func (r *CertReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	r.certMu.Lock()
	r.cert = &cert
	r.certMu.Unlock()
	return nil
}

// Start watches the certificate directories.
func (r *CertReloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.stopCh = make(chan struct{})
	r.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("TLS", "fsnotify not available, falling back to polling: %v", err)
		go r.pollForChanges()
		return nil
	}

	for _, dir := range r.dirs() {
		if err := watcher.Add(dir); err != nil {
			logging.Warn("TLS", "Failed to watch directory %s, falling back to polling: %v", dir, err)
			watcher.Close()
			go r.pollForChanges()
			return nil
		}
	}
	r.fsWatcher = watcher

	go r.processEvents(watcher.Events, watcher.Errors)

	logging.Info("TLS", "Watching %s for certificate changes", r.certFile)
	return nil
}

func (r *CertReloader) dirs() []string {
	dirs := []string{filepath.Dir(r.certFile)}
	if d := filepath.Dir(r.keyFile); !slices.Contains(dirs, d) {
		dirs = append(dirs, d)
	}
	return dirs
}

func (r *CertReloader) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-r.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			r.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("TLS", err, "fsnotify error")
		}
	}
}

func (r *CertReloader) handleEvent(event fsnotify.Event) {
	// Mounted secrets are swapped via a symlink rename, so only the base name
	// of cert, key or the ..data link is a reliable signal.
	name := filepath.Base(event.Name)
	if name != filepath.Base(r.certFile) && name != filepath.Base(r.keyFile) && name != "..data" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	logging.Debug("TLS", "Certificate file changed: %s", event.Name)
	r.triggerReloadDebounced()
}

func (r *CertReloader) triggerReloadDebounced() {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()

	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}

	r.debounceTimer = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		if !running {
			return
		}

		if err := r.reload(); err != nil {
			logging.Error("TLS", err, "Certificate reload failed, keeping previous certificate")
			return
		}
		logging.Info("TLS", "Reloaded TLS certificate from %s", r.certFile)
		if r.onReload != nil {
			r.onReload()
		}
	})
}

func (r *CertReloader) pollForChanges() {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	r.checkForChanges()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if r.checkForChanges() {
				logging.Debug("TLS", "Certificate change detected via polling")
				r.triggerReloadDebounced()
			}
		}
	}
}

// checkForChanges records modification times and reports whether any file
// changed since the previous call.
func (r *CertReloader) checkForChanges() bool {
	changed := false
	for _, file := range []string{r.certFile, r.keyFile} {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if last, ok := r.modTimes[file]; ok && info.ModTime().After(last) {
			changed = true
		}
		r.modTimes[file] = info.ModTime()
	}
	return changed
}

// Stop ends watching. The last loaded certificate stays in use.
func (r *CertReloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)

	r.debounceMu.Lock()
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
		r.debounceTimer = nil
	}
	r.debounceMu.Unlock()

	if r.fsWatcher != nil {
		if err := r.fsWatcher.Close(); err != nil {
			logging.Warn("TLS", "Error closing fsnotify watcher: %v", err)
		}
		r.fsWatcher = nil
	}
}
