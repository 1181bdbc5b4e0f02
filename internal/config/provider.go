package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Provider serves the current configuration and hot-reloads it when the file
// on disk changes. Snapshot returns an immutable view; callers that need
// run-long stability take one snapshot at run start and never re-read.
type Provider struct {
	mu      sync.RWMutex
	path    string
	current *Config
	logger  *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// NewProvider loads the initial configuration from path. The path is
// resolved up front so the watcher observes the same file Load read.
func NewProvider(path string, logger *zap.Logger) (*Provider, error) {
	path = ResolvePath(path)
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Provider{
		path:    path,
		current: cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

// SetLogger swaps the provider's logger, for boot sequences that construct
// the provider before the real logger exists. Call before Watch.
func (p *Provider) SetLogger(logger *zap.Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Snapshot returns the active configuration. The returned value must be
// treated as read-only.
func (p *Provider) Snapshot() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Watch starts reloading the configuration on file changes. A reload that
// fails validation is logged and discarded, keeping the last good config.
func (p *Provider) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		w.Close()
		return fmt.Errorf("config: watch %s: %w", p.path, err)
	}
	p.watcher = w

	go p.watchLoop()
	return nil
}

func (p *Provider) watchLoop() {
	var debounce *time.Timer
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Writers often fire several events per save.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, p.reload)
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("Config watcher error", zap.Error(err))
		case <-p.done:
			return
		}
	}
}

func (p *Provider) reload() {
	cfg, err := Load(p.path)
	if err != nil {
		p.logger.Error("Config reload failed, keeping previous config",
			zap.String("path", p.path), zap.Error(err))
		return
	}
	p.mu.Lock()
	p.current = cfg
	p.mu.Unlock()
	p.logger.Info("Configuration reloaded", zap.String("path", p.path))
}

// Close stops the watcher.
func (p *Provider) Close() {
	p.once.Do(func() {
		close(p.done)
		if p.watcher != nil {
			p.watcher.Close()
		}
	})
}
