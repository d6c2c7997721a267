package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"grimm.is/holdover/internal/events"
	"grimm.is/holdover/internal/logging"
)

// DefaultReloadDebounce collapses the burst of events editors produce on save.
const DefaultReloadDebounce = 250 * time.Millisecond

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Path     string
	Debounce time.Duration
	Hub      *events.Hub
	Logger   *logging.Logger

	// OnChange receives every config that loads cleanly.
	OnChange func(*Config)
}

// Watcher reloads the config file when it changes on disk. Only the log
// level is applied live; everything else takes effect on restart.
type Watcher struct {
	path     string
	debounce time.Duration
	hub      *events.Hub
	logger   *logging.Logger
	onChange func(*Config)

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher watches the directory holding opts.Path. Watching the directory
// rather than the file survives editors that replace the file by rename.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultReloadDebounce
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("config")
	}

	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:     path,
		debounce: opts.Debounce,
		hub:      opts.Hub,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins processing file events until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop closes the underlying watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			w.Reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// Reload loads the file once and applies it. A file that fails to load
// leaves the running config untouched.
func (w *Watcher) Reload() {
	cfg, err := LoadFile(w.path)
	data := events.ConfigReloadData{Path: w.path}
	if err != nil {
		data.Error = err.Error()
		w.logger.Warn("config reload rejected", "path", w.path, "error", err)
		w.publish(data)
		return
	}

	data.LogLevel = cfg.Log.Level
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		w.logger.SetLevel(level)
	}
	w.logger.Info("config reloaded", "path", w.path, "log_level", cfg.Log.Level)
	w.publish(data)

	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) publish(data events.ConfigReloadData) {
	w.hub.Publish(events.Event{Type: events.EventConfigReload, Source: "config", Data: data})
}
