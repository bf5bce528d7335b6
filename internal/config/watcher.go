package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long file events must be quiet before the file is read,
// so a truncate-then-write save is never seen half done.
const settleDelay = 50 * time.Millisecond

// Watcher reports valid changes to a config file. It listens for file system
// events on the file's directory (editors often save by rename) and also
// polls, which covers file systems without event support. Invalid edits are
// logged and ignored; the last valid config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	getenv   func(string) string
	onChange func(old, new *Config)

	mu        sync.Mutex
	current   *Config
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	events   *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Default: 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithGetenv replaces the environment lookup used for API key overrides.
// Default: [os.Getenv].
func WithGetenv(getenv func(string) string) WatcherOption {
	return func(w *Watcher) { w.getenv = getenv }
}

// NewWatcher starts polling path. current is the config already in use;
// onChange is called with it and every later valid config that differs in
// content.
func NewWatcher(path string, current *Config, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     filepath.Clean(path),
		interval: 5 * time.Second,
		getenv:   os.Getenv,
		onChange: onChange,
		current:  current,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.lastMtime = info.ModTime()
	w.lastHash = sha256.Sum256(data)

	if fw, err := fsnotify.NewWatcher(); err != nil {
		slog.Warn("config watcher: file events unavailable, polling only", "err", err)
	} else if err := fw.Add(filepath.Dir(w.path)); err != nil {
		slog.Warn("config watcher: file events unavailable, polling only", "path", w.path, "err", err)
		_ = fw.Close()
	} else {
		w.events = fw
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Current returns the most recent valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends watching and waits for the watch goroutine to exit. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.events != nil {
		defer w.events.Close()
		events, errs = w.events.Events, w.events.Errors
	}

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check(false)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == w.path && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settle.Reset(settleDelay)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("config watcher: file event error", "path", w.path, "err", err)
		case <-settle.C:
			w.check(true)
		}
	}
}

// check reloads the file when its content changed. Unless force is set, an
// unchanged modification time skips the read.
func (w *Watcher) check(force bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime)
	w.mu.Unlock()
	if unchanged && !force {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot read file", "path", w.path, "err", err)
		return
	}
	hash := sha256.Sum256(data)

	w.mu.Lock()
	w.lastMtime = info.ModTime()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data), w.getenv)
	if err != nil {
		slog.Warn("config watcher: ignoring invalid config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}
