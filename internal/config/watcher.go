package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadCallback is called with the freshly loaded config after the file
// changes on disk.
type ReloadCallback func(cfg *Config)

// Watcher monitors the config file and reloads it on change.
type Watcher struct {
	watcher    *fsnotify.Watcher
	loader     *Loader
	configPath string
	onReload   ReloadCallback
	debounce   time.Duration
	done       chan struct{}
	stopOnce   sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a config file watcher.
func NewWatcher(loader *Loader, onReload ReloadCallback) (*Watcher, error) {
	if loader == nil {
		return nil, fmt.Errorf("loader is required")
	}
	if onReload == nil {
		return nil, fmt.Errorf("reload callback is required")
	}

	configPath, err := loader.Path()
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:    fsw,
		loader:     loader,
		configPath: configPath,
		onReload:   onReload,
		debounce:   200 * time.Millisecond,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory. Watching the directory
// instead of the file survives editors that replace the file on save.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()
	return nil
}

// Stop closes the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := w.loader.Load()
		if err != nil {
			log.Warn().Err(err).Str("path", w.configPath).Msg("Config reload failed")
			return
		}
		if err := cfg.Validate(); err != nil {
			log.Warn().Err(err).Msg("Reloaded config is invalid, keeping previous")
			return
		}
		log.Info().Str("path", w.configPath).Msg("Config reloaded")
		w.onReload(cfg)
	})
}
