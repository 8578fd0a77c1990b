package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// Watcher reloads Config from its on-disk file whenever it changes,
// handing the new value to onChange. Unlike a fatal reload (as the
// teacher's cert pool watcher does on a bad update), a malformed config
// file is logged and ignored: the last good Config keeps serving rather
// than crashing a running integration over an in-progress edit.
type Watcher struct {
	path     string
	log      logr.Logger
	watcher  *fsnotify.Watcher
	onChange func(*Config)
}

// NewWatcher starts watching cfg.ConfigPath's directory (fsnotify cannot
// watch a single not-yet-existing file reliably; watching the directory
// catches create/rename-based editors too) and invokes onChange with a
// freshly reloaded Config on every write. Flags are not re-applied on
// reload: CLI flags are fixed for the process lifetime.
func NewWatcher(cfg *Config, log logr.Logger, onChange func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(cfg.ConfigPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{path: cfg.ConfigPath, log: log, watcher: watcher, onChange: onChange}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			w.drainEvents()
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "error watching config file", "path", w.path)
		}
	}
}

// drainEvents coalesces a burst of events from a single save (most
// editors write, rename, then write again) into one reload.
func (w *Watcher) drainEvents() {
	for {
		time.Sleep(50 * time.Millisecond)
		select {
		case <-w.watcher.Events:
		default:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg := Defaults()
	cfg.ConfigPath = w.path
	if err := applyFile(&cfg, w.path); err != nil {
		w.log.Error(err, "reloaded config file is invalid, keeping previous config", "path", w.path)
		return
	}
	if err := applyEnv(&cfg); err != nil {
		w.log.Error(err, "reloaded config environment overlay is invalid, keeping previous config")
		return
	}
	if err := Validate(&cfg); err != nil {
		w.log.Error(err, "reloaded config failed validation, keeping previous config")
		return
	}
	w.onChange(&cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
