package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"pkt.systems/pslog"
)

// CertReloader serves a keypair loaded from disk and reloads it when the
// certificate or key file changes, so rotated certificates take effect
// without restarting the listener.
type CertReloader struct {
	certFile string
	keyFile  string
	logger   pslog.Logger

	cert    atomic.Pointer[tls.Certificate]
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewCertReloader loads the keypair and starts watching both files.
func NewCertReloader(certFile, keyFile string, logger pslog.Logger) (*CertReloader, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	r := &CertReloader{
		certFile: filepath.Clean(certFile),
		keyFile:  filepath.Clean(keyFile),
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tlsutil: create watcher: %w", err)
	}
	// Directories are watched rather than the files so that atomic
	// rename-into-place updates are seen.
	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("tlsutil: watch %q: %w", dir, err)
		}
	}
	r.watcher = watcher
	go r.run()
	return r, nil
}

// Reload reads the keypair from disk. On failure the previous certificate
// stays in service.
func (r *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("load server keypair: %w", err)
	}
	r.cert.Store(&cert)
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := r.cert.Load()
	if cert == nil {
		return nil, errors.New("tlsutil: no certificate loaded")
	}
	return cert, nil
}

// Close stops watching. It is safe to call more than once.
func (r *CertReloader) Close() error {
	if r == nil || r.watcher == nil {
		return nil
	}
	var err error
	r.once.Do(func() {
		close(r.stop)
		err = r.watcher.Close()
		<-r.done
	})
	return err
}

func (r *CertReloader) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(ev) {
				continue
			}
			if err := r.Reload(); err != nil {
				// A writer may have replaced only one of the pair so far.
				r.logger.Debug("tls.cert.reload_pending", "file", ev.Name, "error", err)
				continue
			}
			r.logger.Info("tls.cert.reloaded", "cert", r.certFile)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("tls.cert.watch_error", "error", err)
		}
	}
}

func (r *CertReloader) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	return name == r.certFile || name == r.keyFile
}

// WatchServerConfig is ServerConfig with the keypair served through a
// CertReloader. The caller closes the reloader when the listener stops.
func WatchServerConfig(certFile, keyFile, clientCAFile string, logger pslog.Logger) (*tls.Config, *CertReloader, error) {
	reloader, err := NewCertReloader(certFile, keyFile, logger)
	if err != nil {
		return nil, nil, err
	}
	cfg := &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: reloader.GetCertificate,
	}
	if err := applyClientCA(cfg, clientCAFile); err != nil {
		_ = reloader.Close()
		return nil, nil, err
	}
	return cfg, reloader, nil
}
