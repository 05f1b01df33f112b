// Package notestore holds the in-memory note collection and writes it
// through to persistence after every successful mutation.
package notestore

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/jotter/internal/models"
)

// Persister receives the full collection after every successful mutation.
type Persister interface {
	Save(notes []models.Note)
}

// Store is the only mutator of the note collection. Notes are kept
// most-recent-first by insertion; callers only ever see copies.
type Store struct {
	mu    sync.Mutex
	notes []models.Note
	saver Persister
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// New creates a store seeded with initial, which is copied.
func New(initial []models.Note, saver Persister, opts ...Option) *Store {
	s := &Store{
		notes: slices.Clone(initial),
		saver: saver,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	if s.notes == nil {
		s.notes = []models.Note{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns an id that no note in the collection currently uses.
func (s *Store) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uniqueID()
}

// Create trims title and content and inserts a new unarchived note at the
// front of the collection.
func (s *Store) Create(title, content string, pinned bool) models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := models.Note{
		ID:        s.uniqueID(),
		Title:     strings.TrimSpace(title),
		Content:   strings.TrimSpace(content),
		Pinned:    pinned,
		Archived:  false,
		UpdatedAt: s.now(),
	}
	s.notes = slices.Insert(s.notes, 0, n)
	s.persist()
	return n
}

// Update replaces title, content and pinned on the note with id. The
// archived flag is left alone. It reports false if no such note exists.
func (s *Store) Update(id, title, content string, pinned bool) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Note{}, false
	}
	n := &s.notes[i]
	n.Title = strings.TrimSpace(title)
	n.Content = strings.TrimSpace(content)
	n.Pinned = pinned
	n.UpdatedAt = s.now()
	s.persist()
	return *n, true
}

// Delete removes the note with id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.notes = slices.Delete(s.notes, i, i+1)
	s.persist()
	return true
}

// TogglePin flips the pinned flag.
func (s *Store) TogglePin(id string) bool {
	return s.toggle(id, func(n *models.Note) { n.Pinned = !n.Pinned })
}

// ToggleArchive flips the archived flag.
func (s *Store) ToggleArchive(id string) bool {
	return s.toggle(id, func(n *models.Note) { n.Archived = !n.Archived })
}

// Prepend inserts notes, in order, ahead of the existing collection with
// a single persistence write, and returns what was inserted. A note whose
// id is already in use, by the collection or earlier in notes, gets a
// fresh id.
func (s *Store) Prepend(notes []models.Note) []models.Note {
	if len(notes) == 0 {
		return []models.Note{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	added := slices.Clone(notes)
	// Fresh ids must not steal an id a later note in the batch still owns.
	reserved := make(map[string]struct{}, len(added))
	for _, n := range added {
		reserved[n.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(added))
	for i := range added {
		if _, dup := seen[added[i].ID]; dup || added[i].ID == "" || s.indexOf(added[i].ID) >= 0 {
			added[i].ID = s.uniqueIDExcept(reserved)
			reserved[added[i].ID] = struct{}{}
		}
		seen[added[i].ID] = struct{}{}
	}
	s.notes = slices.Concat(added, s.notes)
	s.persist()
	return slices.Clone(added)
}

// Replace swaps the whole collection without writing it back. It is used
// when the durable copy changed underneath us.
func (s *Store) Replace(notes []models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notes = slices.Clone(notes)
	if s.notes == nil {
		s.notes = []models.Note{}
	}
}

// Persist writes the current collection again. It is used when the durable
// copy went missing underneath us.
func (s *Store) Persist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persist()
}

// Get returns a copy of the note with id.
func (s *Store) Get(id string) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Note{}, false
	}
	return s.notes[i], true
}

// Notes returns a copy of the collection in baseline order.
func (s *Store) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notes)
}

// Len returns the number of notes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

func (s *Store) toggle(id string, flip func(*models.Note)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	flip(&s.notes[i])
	s.notes[i].UpdatedAt = s.now()
	s.persist()
	return true
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.notes, func(n models.Note) bool { return n.ID == id })
}

// uniqueID draws ids until one is unused. Caller holds mu.
func (s *Store) uniqueID() string {
	return s.uniqueIDExcept(nil)
}

func (s *Store) uniqueIDExcept(reserved map[string]struct{}) string {
	for {
		id := s.newID()
		if _, dup := reserved[id]; dup || id == "" {
			continue
		}
		if s.indexOf(id) < 0 {
			return id
		}
	}
}

func (s *Store) persist() {
	if s.saver != nil {
		s.saver.Save(slices.Clone(s.notes))
	}
}
