package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// stamp identifies one version of the config file.
type stamp struct {
	modTime time.Time
	sum     [sha256.Size]byte
}

// Watcher polls a config file and reports each changed, valid version to a
// callback. Unusable edits are logged once and the previous config stays
// active.
type Watcher struct {
	path     string
	every    time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    stamp

	quit     chan struct{}
	quitOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.every = d
		}
	}
}

// NewWatcher loads the config at path and polls it in the background until
// Stop is called. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		every:    defaultPollInterval,
		onChange: onChange,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, st, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.seen = cfg, st

	go w.loop()
	return w, nil
}

// Current returns the latest valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. Further calls are no-ops.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.every)
	defer t.Stop()
	for {
		select {
		case <-w.quit:
			return
		case <-t.C:
			w.reload()
		}
	}
}

// reload applies the file if its modification time moved and its content
// differs from the active version.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config: watched file unavailable", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.modTime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, st, err := w.load()

	w.mu.Lock()
	if err != nil {
		// Remember the broken version so it is reported once.
		w.seen.modTime = info.ModTime()
		w.mu.Unlock()
		slog.Warn("config: keeping previous configuration", "path", w.path, "err", err)
		return
	}
	if st.sum == w.seen.sum {
		w.seen = st
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.seen = cfg, st
	w.mu.Unlock()

	slog.Info("config: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) load() (*Config, stamp, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, stamp{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, stamp{}, err
	}
	return cfg, stamp{modTime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
