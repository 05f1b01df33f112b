// Package watcher reloads the note collection when its backing file is
// changed by another process.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/jotter/internal/checksum"
	"github.com/starford/jotter/internal/debounce"
	"github.com/starford/jotter/internal/storage"
)

// DefaultSettle is how long the file must be quiet before it is re-read.
const DefaultSettle = 200 * time.Millisecond

// Reloader is the part of the note service the watcher drives.
type Reloader interface {
	// LastChecksum is the checksum of the payload the service last read or
	// wrote.
	LastChecksum() string
	// Reload replaces the in-memory collection with the durable copy. It
	// fails, leaving the collection alone, when the copy cannot be read.
	Reload(ctx context.Context) error
}

// Watcher observes a single data file.
type Watcher struct {
	path     string
	target   Reloader
	logger   *slog.Logger
	settle   time.Duration
	onReload func()
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithReloadHook is called after every successful reload the watcher
// triggers.
func WithReloadHook(fn func()) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New returns a watcher for the file that fsProvider stores key in.
func New(fsProvider *storage.FS, key string, target Reloader, opts ...Option) (*Watcher, error) {
	path, err := fsProvider.Path(key)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:   path,
		target: target,
		logger: slog.Default(),
		settle: DefaultSettle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the watched file.
func (w *Watcher) Path() string { return w.path }

// Run watches the data file's directory until ctx is cancelled. Events for
// other files, including in-flight temp files, are ignored. Bursts are
// collapsed and the file is only reloaded when its content differs from
// what the service last saw.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("path", w.path))

	settled := debounce.New(w.settle, func() { w.check(ctx) })
	defer settled.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("watcher: event", slog.String("op", ev.Op.String()))
			settled.Trigger()

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), storage.TempPrefix) {
		return false
	}
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

// check reloads when the file content no longer matches the service.
func (w *Watcher) check(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		w.logger.Warn("watcher: read failed", slog.String("error", err.Error()))
		return
	}
	if data != nil && checksum.Equal(data, w.target.LastChecksum()) {
		return
	}
	w.logger.Info("watcher: external change detected", slog.String("path", w.path))
	if err := w.target.Reload(ctx); err != nil {
		w.logger.Warn("watcher: reload rejected", slog.String("error", err.Error()))
		return
	}
	if w.onReload != nil {
		w.onReload()
	}
}
