// Package storage defines the durable key-value slot the note collection is
// persisted into.
package storage

import "errors"

// ErrNoKey is returned by Get when nothing has been stored under the key.
var ErrNoKey = errors.New("storage: key not found")

// Provider is the interface for durable key-value slots.
type Provider interface {
	// Get returns the bytes stored under key, or ErrNoKey.
	Get(key string) ([]byte, error)
	// Put atomically replaces the value stored under key.
	Put(key string, value []byte) error
	// Close releases any underlying resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open builds the provider for backend. For "fs" path is a directory, for
// "sqlite" it is the database file; "memory" ignores it.
func Open(backend, path string) (Provider, error) {
	switch backend {
	case BackendFS, "":
		return NewFS(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, errors.New("storage: unknown backend " + backend)
	}
}
