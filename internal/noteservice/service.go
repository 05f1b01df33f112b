// Package noteservice is the operation surface the transports call: it
// validates input, drives the note store, and announces every change so
// callers can re-render.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/debounce"
	"github.com/starford/jotter/internal/metrics"
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/notestore"
	"github.com/starford/jotter/internal/persist"
	"github.com/starford/jotter/internal/query"
	"github.com/starford/jotter/internal/sse"
	"github.com/starford/jotter/internal/storage"
	"github.com/starford/jotter/internal/transfer"
)

// DefaultAutosaveDelay is the quiet period before a draft is saved.
const DefaultAutosaveDelay = 500 * time.Millisecond

// EventFunc is told about every successful change. kind is one of the
// sse.Kind* constants; id is empty for collection-wide changes.
type EventFunc func(kind, id string)

// NoteInput carries the user-editable fields of a note.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Pinned  bool   `json:"pinned"`
}

// Validate requires non-blank title and content.
func (in NoteInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.By(notBlank)),
		validation.Field(&in.Content, validation.By(notBlank)),
	)
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return validation.ErrRequired
	}
	return nil
}

// ImportReport summarises a successful import. Skipped > 0 means some
// records were invalid and dropped.
type ImportReport struct {
	Imported         int   `json:"imported"`
	Skipped          int   `json:"skipped"`
	SkippedPositions []int `json:"skipped_positions,omitempty"`
}

// Service coordinates the store, persistence and change notifications.
type Service struct {
	store    *notestore.Store
	adapter  *persist.Adapter
	autosave *debounce.Group[string]
	metrics  *metrics.Metrics
	onEvent  EventFunc
	logger   *slog.Logger
	now      func() time.Time

	autosaveDelay time.Duration
	storeOpts     []notestore.Option
}

// Option configures a Service.
type Option func(*Service)

// WithEvents sets the change callback.
func WithEvents(fn EventFunc) Option {
	return func(s *Service) { s.onEvent = fn }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithAutosaveDelay overrides DefaultAutosaveDelay.
func WithAutosaveDelay(d time.Duration) Option {
	return func(s *Service) { s.autosaveDelay = d }
}

// WithClock overrides the clock used for export file names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStoreOptions passes options through to the note store.
func WithStoreOptions(opts ...notestore.Option) Option {
	return func(s *Service) { s.storeOpts = append(s.storeOpts, opts...) }
}

// New loads the collection through adapter and returns a ready service.
func New(adapter *persist.Adapter, opts ...Option) *Service {
	s := &Service{
		adapter:       adapter,
		logger:        slog.Default(),
		now:           time.Now,
		autosaveDelay: DefaultAutosaveDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.autosave = debounce.NewGroup[string](s.autosaveDelay)
	s.store = notestore.New(adapter.Load(), adapter, s.storeOpts...)
	s.refreshCounts()

	s.logger.Info("notes loaded",
		slog.Int("count", s.store.Len()),
		slog.String("key", adapter.Key()))
	return s
}

// Create validates in and adds a new note.
func (s *Service) Create(_ context.Context, in NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, fmt.Errorf("%w: %w", apperr.ErrInvalidNote, err)
	}
	n := s.store.Create(in.Title, in.Content, in.Pinned)
	s.changed("create", sse.KindCreated, n.ID)
	return n, nil
}

// Update validates in and replaces the note's editable fields. A pending
// autosave for the note is superseded.
func (s *Service) Update(_ context.Context, id string, in NoteInput) (models.Note, error) {
	if err := in.Validate(); err != nil {
		return models.Note{}, fmt.Errorf("%w: %w", apperr.ErrInvalidNote, err)
	}
	s.autosave.Cancel(id)
	return s.update(id, in)
}

func (s *Service) update(id string, in NoteInput) (models.Note, error) {
	n, ok := s.store.Update(id, in.Title, in.Content, in.Pinned)
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	s.changed("update", sse.KindUpdated, n.ID)
	return n, nil
}

// Delete removes a note permanently.
func (s *Service) Delete(_ context.Context, id string) error {
	s.autosave.Cancel(id)
	if !s.store.Delete(id) {
		return apperr.ErrNotFound
	}
	s.changed("delete", sse.KindDeleted, id)
	return nil
}

// TogglePin flips the pinned flag and returns the note afterwards. A
// pending draft is saved first so it cannot revert the flag later.
func (s *Service) TogglePin(_ context.Context, id string) (models.Note, error) {
	s.autosave.Flush(id)
	if !s.store.TogglePin(id) {
		return models.Note{}, apperr.ErrNotFound
	}
	s.changed("toggle_pin", sse.KindPinned, id)
	return s.get(id)
}

// ToggleArchive flips the archived flag and returns the note afterwards.
func (s *Service) ToggleArchive(_ context.Context, id string) (models.Note, error) {
	s.autosave.Flush(id)
	if !s.store.ToggleArchive(id) {
		return models.Note{}, apperr.ErrNotFound
	}
	s.changed("toggle_archive", sse.KindArchived, id)
	return s.get(id)
}

// Get returns a single note.
func (s *Service) Get(_ context.Context, id string) (models.Note, error) {
	return s.get(id)
}

func (s *Service) get(id string) (models.Note, error) {
	n, ok := s.store.Get(id)
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	return n, nil
}

// List returns the filtered, sorted view and the per-tab counts, both
// taken from the same snapshot.
func (s *Service) List(_ context.Context, mode query.Mode, search string) ([]models.Note, models.Counts) {
	notes := s.store.Notes()
	return query.FilteredView(notes, mode, search), query.Count(notes)
}

// Counts returns the per-tab counts.
func (s *Service) Counts(_ context.Context) models.Counts {
	return query.Count(s.store.Notes())
}

// Autosave schedules an update of id once edits have been quiet for the
// autosave delay. Only the latest draft of a burst is saved.
func (s *Service) Autosave(_ context.Context, id string, in NoteInput) error {
	if _, ok := s.store.Get(id); !ok {
		return apperr.ErrNotFound
	}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidNote, err)
	}
	s.autosave.Trigger(id, func() {
		if _, err := s.update(id, in); err != nil {
			s.logger.Debug("autosave dropped", slog.String("id", id), slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("autosaved", slog.String("id", id))
	})
	return nil
}

// FlushAutosaves writes every pending draft now.
func (s *Service) FlushAutosaves() {
	s.autosave.FlushAll()
}

// PendingAutosaves returns the number of drafts waiting to be saved.
func (s *Service) PendingAutosaves() int {
	return s.autosave.Len()
}

// Import reads an import file and prepends its valid records. The file is
// rejected before reading if it fails the type or size gate, and as a
// whole if it is malformed or holds no valid record.
func (s *Service) Import(_ context.Context, f *transfer.File, r io.Reader) (ImportReport, error) {
	if err := transfer.CheckFile(f); err != nil {
		return ImportReport{}, err
	}
	if r == nil {
		return ImportReport{}, fmt.Errorf("%w: no file selected", apperr.ErrValidation)
	}
	data, err := io.ReadAll(io.LimitReader(r, transfer.MaxFileSize+1))
	if err != nil {
		return ImportReport{}, fmt.Errorf("%w: error reading file: %w", apperr.ErrImportFormat, err)
	}
	if len(data) > transfer.MaxFileSize {
		return ImportReport{}, transfer.ErrTooLarge
	}
	return s.ImportData(data)
}

// ImportData applies an already-read import payload.
func (s *Service) ImportData(data []byte) (ImportReport, error) {
	candidates, err := transfer.DecodeCandidates(data)
	if err != nil {
		return ImportReport{}, err
	}

	res := transfer.ImportBatch(s.store.Notes(), candidates, s.store.NewID)
	if s.metrics != nil {
		s.metrics.ImportSkipped(res.RejectedCount())
	}
	if len(res.Accepted) == 0 {
		return ImportReport{}, fmt.Errorf("%w: no valid notes found in the file", apperr.ErrImportFormat)
	}

	added := s.store.Prepend(res.Accepted)
	s.changed("import", sse.KindImported, "")

	report := ImportReport{
		Imported:         len(added),
		Skipped:          res.RejectedCount(),
		SkippedPositions: res.RejectedPositions,
	}
	if report.Skipped > 0 {
		s.logger.Warn("import skipped invalid records",
			slog.Int("imported", report.Imported),
			slog.Int("skipped", report.Skipped))
	} else {
		s.logger.Info("import complete", slog.Int("imported", report.Imported))
	}
	return report, nil
}

// Export serializes the whole collection and names the backup file.
func (s *Service) Export(_ context.Context) (string, []byte, error) {
	notes := s.store.Notes()
	if len(notes) == 0 {
		return "", nil, apperr.ErrNothingToExport
	}
	data, err := transfer.Export(notes)
	if err != nil {
		return "", nil, err
	}
	return transfer.ExportFilename(s.now()), data, nil
}

// Reload replaces the in-memory collection with the durable copy. It is
// used when the slot was changed by something other than this process.
// Memory stays authoritative: an unreadable or corrupt copy leaves the
// collection untouched and is returned, and a removed copy is rewritten
// from memory.
func (s *Service) Reload(_ context.Context) error {
	notes, err := s.adapter.Read()
	switch {
	case errors.Is(err, storage.ErrNoKey):
		s.logger.Warn("stored notes missing, restoring from memory",
			slog.Int("count", s.store.Len()))
		s.store.Persist()
		return nil
	case err != nil:
		if s.metrics != nil {
			s.metrics.StorageError(err)
		}
		s.logger.Error("reload failed, keeping notes in memory", slog.String("error", err.Error()))
		return err
	}

	s.store.Replace(notes)
	s.refreshCounts()
	s.logger.Info("notes reloaded", slog.Int("count", s.store.Len()))
	s.emit(sse.KindReloaded, "")
	return nil
}

// LastChecksum is the checksum of the payload last read or written.
func (s *Service) LastChecksum() string {
	return s.adapter.LastChecksum()
}

// Close flushes pending autosaves.
func (s *Service) Close() error {
	s.FlushAutosaves()
	return nil
}

// IsUserError reports whether err is caused by caller input rather than
// an internal failure.
func IsUserError(err error) bool {
	for _, target := range []error{
		apperr.ErrNotFound, apperr.ErrInvalidNote, apperr.ErrValidation,
		apperr.ErrImportFormat, apperr.ErrNothingToImport, apperr.ErrNothingToExport,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Service) changed(op, kind, id string) {
	if s.metrics != nil {
		s.metrics.Mutation(op)
	}
	s.refreshCounts()
	s.logger.Debug("note changed", slog.String("op", op), slog.String("id", id))
	s.emit(kind, id)
}

func (s *Service) emit(kind, id string) {
	if s.onEvent != nil {
		s.onEvent(kind, id)
	}
}

func (s *Service) refreshCounts() {
	if s.metrics != nil {
		s.metrics.SetCounts(query.Count(s.store.Notes()))
	}
}
