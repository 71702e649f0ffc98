package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow matches the original ConfigManager.watchLoop()'s
// coalescing delay: editors typically emit write+chmod+rename in quick
// succession for a single logical save.
const debounceWindow = 100 * time.Millisecond

// watcher wraps an fsnotify.Watcher scoped to a single config
// directory, debouncing bursts of events on the same file into a single
// callback carrying the config id (the file's basename without its
// extension).
type watcher struct {
	fsw *fsnotify.Watcher
	dir string
	on  func(id string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	closing chan struct{}
}

func newWatcher(dir string, on func(id string)) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &watcher{
		fsw:     fsw,
		dir:     dir,
		on:      on,
		timers:  make(map[string]*time.Timer),
		closing: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".properties") {
				continue
			}
			w.debounce(idFromPath(ev.Name))
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.closing:
			return
		}
	}
}

func (w *watcher) debounce(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[id]; ok {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(debounceWindow, func() {
		w.on(id)
	})
}

func (w *watcher) Close() {
	close(w.closing)
	w.fsw.Close()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
}

func idFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
