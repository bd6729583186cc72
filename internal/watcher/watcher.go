// Package watcher reports debounced changes to a SQLite database file made
// by any process, including writes that land in the WAL.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/register/internal/log"
)

// Watcher signals when the database file or its WAL is written.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	names     map[string]bool
	debounce  time.Duration
	changes   chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// Config holds watcher configuration options.
type Config struct {
	// Path is the database file. Its directory is watched.
	Path string
	// Debounce is how long writes must pause before a change is signalled.
	Debounce time.Duration
}

// DefaultConfig returns a config for path with a 500ms debounce.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		Debounce: 500 * time.Millisecond,
	}
}

// New creates a watcher. Call Start to begin receiving changes.
func New(cfg Config) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watcher: path is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	base := filepath.Base(cfg.Path)
	return &Watcher{
		fsWatcher: fsw,
		path:      cfg.Path,
		names:     map[string]bool{base: true, base + "-wal": true},
		debounce:  cfg.Debounce,
		changes:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the database directory. The returned channel holds at most
// one pending signal, so a slow reader sees one change for a burst of writes.
// It is closed by Stop.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	log.Debug(log.CatDB, "watching database", "path", w.path, "debounce", w.debounce)
	return w.changes, nil
}

// Stop terminates the watcher and releases resources. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
		close(w.changes)
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatDB, "database watch error", err, "path", w.path)

		case <-w.done:
			return
		}
	}
}

// relevant reports writes or creates of the database or its WAL.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return w.names[filepath.Base(event.Name)]
}
