// Package testutil provides shared test helpers for building note services.
package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/starford/jotter/internal/noteservice"
	"github.com/starford/jotter/internal/persist"
	"github.com/starford/jotter/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Service creates an in-memory note service that is closed on cleanup.
func Service(t *testing.T, opts ...noteservice.Option) *noteservice.Service {
	t.Helper()
	svc, _ := ServiceOn(t, storage.NewMemory(), opts...)
	return svc
}

// ServiceOn creates a note service over slot and returns it with its
// persistence adapter.
func ServiceOn(t *testing.T, slot storage.Provider, opts ...noteservice.Option) (*noteservice.Service, *persist.Adapter) {
	t.Helper()
	adapter := persist.New(slot, persist.WithErrorHandler(func(err error) {
		t.Logf("storage failure: %v", err)
	}))
	opts = append([]noteservice.Option{noteservice.WithLogger(Logger())}, opts...)
	svc := noteservice.New(adapter, opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, adapter
}

// FSSlot creates a file-backed slot in a temporary directory.
func FSSlot(t *testing.T) *storage.FS {
	t.Helper()
	slot, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return slot
}
