// Package persist serializes the note collection into a single durable
// storage key.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/checksum"
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/storage"
)

// DefaultKey is the storage key holding the collection.
const DefaultKey = "notes.app.v1"

// ErrorHandler receives storage failures. Failures are never returned to
// mutating callers; the in-memory collection stays authoritative.
type ErrorHandler func(err error)

// Adapter reads and writes the collection through a storage.Provider.
type Adapter struct {
	slot    storage.Provider
	key     string
	onError ErrorHandler

	mu      sync.Mutex
	lastSum string
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(a *Adapter) {
		if key != "" {
			a.key = key
		}
	}
}

// WithErrorHandler sets the callback for read and write failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *Adapter) {
		a.onError = h
	}
}

// New creates an adapter over slot.
func New(slot storage.Provider, opts ...Option) *Adapter {
	a := &Adapter{slot: slot, key: DefaultKey}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the storage key in use.
func (a *Adapter) Key() string { return a.key }

// Load returns the stored collection. A missing key yields an empty
// collection; an unreadable or corrupt payload is reported and also yields
// an empty collection.
func (a *Adapter) Load() []models.Note {
	notes, err := a.Read()
	if err != nil {
		if !errors.Is(err, storage.ErrNoKey) {
			a.report(err)
		}
		return []models.Note{}
	}
	return notes
}

// Read returns the stored collection or the reason it could not be
// returned: storage.ErrNoKey when nothing is stored, apperr.ErrStorageRead
// when the slot fails or the payload does not decode. Failures are not
// reported to the error handler.
func (a *Adapter) Read() ([]models.Note, error) {
	data, err := a.slot.Get(a.key)
	if errors.Is(err, storage.ErrNoKey) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageRead, err)
	}

	notes, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorageRead, err)
	}
	a.remember(data)
	return notes, nil
}

// Save writes the full collection. Failures are reported, not returned.
func (a *Adapter) Save(notes []models.Note) {
	if notes == nil {
		notes = []models.Note{}
	}
	data, err := json.Marshal(notes)
	if err != nil {
		a.report(fmt.Errorf("%w: encode: %w", apperr.ErrStorageWrite, err))
		return
	}
	if err := a.slot.Put(a.key, data); err != nil {
		a.report(fmt.Errorf("%w: %w", apperr.ErrStorageWrite, err))
		return
	}
	a.remember(data)
}

// LastChecksum is the SHA-256 of the payload most recently read or written
// by this adapter. The watcher uses it to skip its own writes.
func (a *Adapter) LastChecksum() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSum
}

// Decode parses a persisted payload. An empty or null payload is an empty
// collection.
func Decode(data []byte) ([]models.Note, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Note{}, nil
	}
	var notes []models.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	if notes == nil {
		notes = []models.Note{}
	}
	return notes, nil
}

func (a *Adapter) remember(data []byte) {
	sum := checksum.Sum(data)
	a.mu.Lock()
	a.lastSum = sum
	a.mu.Unlock()
}

func (a *Adapter) report(err error) {
	if a.onError != nil {
		a.onError(err)
	}
}
