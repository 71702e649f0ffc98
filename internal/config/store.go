// Package config implements the runtime core's C3 Config Store: typed
// config registration with validation, filesystem persistence under
// <data_dir>/config/<id>.properties, and watch-driven hot reload.
// Grounded on the original ConfigManager/Config/AbstractConfig split;
// BaseConfig below is the Go shape of AbstractConfig's default
// schema-version/migrate() behavior. It supplies no default Validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rubidium-run/rubidium/internal/corerr"
)

// TypedConfig is what the store demands of every registered config type:
// a key/value absorber, a key/value emitter, and a validator that
// returns human-readable errors (empty slice when valid).
type TypedConfig interface {
	Load(kv map[string]string) error
	Save(kv map[string]string)
	Validate() []string
}

// Migratable is implemented by configs that carry a schema version and
// know how to migrate an older on-disk version forward. Configs that
// don't implement it are treated as schema version 1 with an identity
// migration.
type Migratable interface {
	SchemaVersion() int
	Migrate(oldVersion int, kv map[string]string) (map[string]string, error)
}

// BaseConfig is an embeddable helper giving a TypedConfig the original
// AbstractConfig's default behavior: schema version 1, identity
// migration. Concrete configs still implement Load/Save/Validate
// themselves; embedding BaseConfig only saves boilerplate for the
// Migratable half of the contract.
type BaseConfig struct{}

func (BaseConfig) SchemaVersion() int { return defaultSchemaVersion }

func (BaseConfig) Migrate(_ int, kv map[string]string) (map[string]string, error) {
	return kv, nil
}

// Listener is notified after a holder's value is atomically swapped by a
// reload. Register and Save do not notify listeners; only Reload does.
type Listener func(old, new TypedConfig)

// holder is the type-erased storage cell for one registered config.
type holder struct {
	path    string
	factory func() TypedConfig

	mu    sync.RWMutex
	value TypedConfig
}

func (h *holder) get() TypedConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.value
}

func (h *holder) swap(v TypedConfig) {
	h.mu.Lock()
	h.value = v
	h.mu.Unlock()
}

// Store is the runtime-core config store. Zero value is not usable;
// construct with New.
type Store struct {
	dir string

	initialized atomic.Bool

	mu        sync.RWMutex
	holders   map[string]*holder
	listeners map[string][]Listener

	watcher *watcher
}

// New creates a Store rooted at dir (typically <data_dir>/config).
func New(dir string) *Store {
	return &Store{
		dir:       dir,
		holders:   make(map[string]*holder),
		listeners: make(map[string][]Listener),
	}
}

// Initialize is idempotent: only the first call creates the config
// directory and starts the hot-reload watcher. If watch setup fails
// (platform-dependent), hot-reload degrades to off; manual Reload*
// still works.
func (s *Store) Initialize() error {
	if !s.initialized.CompareAndSwap(false, true) {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.initialized.Store(false)
		return corerr.ConfigurationError("failed to create config directory", err)
	}

	w, err := newWatcher(s.dir, s.onFileEvent)
	if err == nil {
		s.watcher = w
	}
	return nil
}

// Shutdown stops the watcher thread and drops every holder and
// listener.
func (s *Store) Shutdown() {
	if !s.initialized.CompareAndSwap(true, false) {
		return
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}

	s.mu.Lock()
	s.holders = make(map[string]*holder)
	s.listeners = make(map[string][]Listener)
	s.mu.Unlock()
}

// Register loads <dir>/<id>.properties into a fresh instance produced by
// factory, validating it; if the file does not exist, it serializes
// defaultValue to that path instead. On success the holder is installed
// and the current value returned. On an unrecoverable validation error
// the holder is NOT registered.
func Register[T TypedConfig](s *Store, id string, factory func() T, defaultValue T) (T, error) {
	var zero T

	path := s.pathFor(id)
	var value TypedConfig

	if _, err := os.Stat(path); err == nil {
		loaded, lerr := loadTyped(path, func() TypedConfig { return factory() })
		if lerr != nil {
			return zero, lerr
		}
		value = loaded
	} else {
		value = defaultValue
		if err := saveTyped(path, value); err != nil {
			return zero, err
		}
	}

	if errs := value.Validate(); len(errs) > 0 {
		return zero, corerr.ValidationError(id, errs)
	}

	h := &holder{path: path, factory: func() TypedConfig { return factory() }, value: value}
	s.mu.Lock()
	s.holders[id] = h
	s.mu.Unlock()

	return value.(T), nil
}

// Get returns the current value of a registered config. It fails if id
// is unregistered or the stored value does not match T.
func Get[T TypedConfig](s *Store, id string) (T, error) {
	var zero T

	s.mu.RLock()
	h, ok := s.holders[id]
	s.mu.RUnlock()
	if !ok {
		return zero, corerr.ConfigurationError(fmt.Sprintf("config %q is not registered", id), nil)
	}

	v, ok := h.get().(T)
	if !ok {
		return zero, corerr.ConfigurationError(fmt.Sprintf("config %q type mismatch", id), nil)
	}
	return v, nil
}

// Reload re-parses id's file into a fresh instance, validates it, and —
// only on success — atomically swaps the holder's value and notifies
// every listener registered for id with (old, new). A validation
// failure leaves the holder unchanged and returns the error.
func (s *Store) Reload(id string) error {
	s.mu.RLock()
	h, ok := s.holders[id]
	s.mu.RUnlock()
	if !ok {
		return corerr.ConfigurationError(fmt.Sprintf("config %q is not registered", id), nil)
	}

	fresh, err := loadTyped(h.path, h.factory)
	if err != nil {
		return err
	}
	if errs := fresh.Validate(); len(errs) > 0 {
		return corerr.ValidationError(id, errs)
	}

	old := h.get()
	h.swap(fresh)
	s.notify(id, old, fresh)
	return nil
}

// ReloadAll best-effort reloads every registered id; one failure does
// not prevent the others from being attempted.
func (s *Store) ReloadAll() map[string]error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.holders))
	for id := range s.holders {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	failures := make(map[string]error)
	for _, id := range ids {
		if err := s.Reload(id); err != nil {
			failures[id] = err
		}
	}
	return failures
}

// Save writes value to id's file and updates the holder's value
// atomically. It does not run Validate(); callers that want validated
// saves should validate before calling Save.
func Save[T TypedConfig](s *Store, id string, value T) error {
	s.mu.RLock()
	h, ok := s.holders[id]
	s.mu.RUnlock()
	if !ok {
		return corerr.ConfigurationError(fmt.Sprintf("config %q is not registered", id), nil)
	}

	if err := saveTyped(h.path, value); err != nil {
		return err
	}
	h.swap(value)
	return nil
}

// AddListener registers a reload listener for id. Listeners observe a
// reload strictly after the holder swap that installed the new value.
func (s *Store) AddListener(id string, l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[id] = append(s.listeners[id], l)
}

func (s *Store) notify(id string, old, new TypedConfig) {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners[id]))
	copy(listeners, s.listeners[id])
	s.mu.RUnlock()

	for _, l := range listeners {
		l(old, new)
	}
}

// IsRegistered reports whether id currently has a holder.
func (s *Store) IsRegistered(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.holders[id]
	return ok
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id+".properties")
}

func (s *Store) onFileEvent(id string) {
	if s.IsRegistered(id) {
		_ = s.Reload(id)
	}
}
