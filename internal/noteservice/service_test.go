package noteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/persist"
	"github.com/starford/jotter/internal/query"
	"github.com/starford/jotter/internal/sse"
	"github.com/starford/jotter/internal/storage"
	"github.com/starford/jotter/internal/transfer"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) record(kind, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, kind+":"+id)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newService(t *testing.T, slot storage.Provider, opts ...Option) (*Service, *eventLog) {
	t.Helper()
	if slot == nil {
		slot = storage.NewMemory()
	}
	log := &eventLog{}
	opts = append([]Option{WithEvents(log.record), WithAutosaveDelay(20 * time.Millisecond)}, opts...)
	return New(persist.New(slot), opts...), log
}

type brokenSlot struct {
	storage.Provider
	getErr error
}

func (b *brokenSlot) Get(key string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.Provider.Get(key)
}

func storedNotes(t *testing.T, slot storage.Provider) []models.Note {
	t.Helper()
	raw, err := slot.Get(persist.DefaultKey)
	require.NoError(t, err)
	notes, err := persist.Decode(raw)
	require.NoError(t, err)
	return notes
}

func TestCreate_ValidatesAndPersists(t *testing.T) {
	slot := storage.NewMemory()
	svc, log := newService(t, slot)
	ctx := context.Background()

	_, err := svc.Create(ctx, NoteInput{Title: "  ", Content: "body"})
	require.ErrorIs(t, err, apperr.ErrInvalidNote)
	_, err = svc.Create(ctx, NoteInput{Title: "Title", Content: ""})
	require.ErrorIs(t, err, apperr.ErrInvalidNote)
	require.Empty(t, log.all())

	n, err := svc.Create(ctx, NoteInput{Title: " Groceries ", Content: "Milk, eggs"})
	require.NoError(t, err)
	require.Equal(t, "Groceries", n.Title)
	require.Equal(t, []string{sse.KindCreated + ":" + n.ID}, log.all())

	stored := storedNotes(t, slot)
	require.Len(t, stored, 1)
	require.Equal(t, n.ID, stored[0].ID)
}

func TestMutations_NotFound(t *testing.T) {
	svc, log := newService(t, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "nope", NoteInput{Title: "t", Content: "c"})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "nope"), apperr.ErrNotFound)
	_, err = svc.TogglePin(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.ToggleArchive(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Get(ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.Empty(t, log.all())
}

func TestGroceriesScenarioThroughService(t *testing.T) {
	svc, log := newService(t, nil)
	ctx := context.Background()

	n, err := svc.Create(ctx, NoteInput{Title: "Groceries", Content: "Milk, eggs"})
	require.NoError(t, err)

	pinned, err := svc.TogglePin(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, pinned.Pinned)

	view, counts := svc.List(ctx, query.ModePinned, "")
	require.Len(t, view, 1)
	require.Equal(t, models.Counts{All: 1, Pinned: 1}, counts)

	archived, err := svc.ToggleArchive(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, archived.Archived)

	view, counts = svc.List(ctx, query.ModePinned, "")
	require.Empty(t, view)
	require.Equal(t, models.Counts{Archived: 1}, counts)

	require.NoError(t, svc.Delete(ctx, n.ID))
	require.Equal(t, []string{
		"created:" + n.ID, "pinned:" + n.ID, "archived:" + n.ID, "deleted:" + n.ID,
	}, log.all())
}

func TestAutosave_CoalescesToLatestDraft(t *testing.T) {
	slot := storage.NewMemory()
	svc, log := newService(t, slot)
	ctx := context.Background()
	n, _ := svc.Create(ctx, NoteInput{Title: "Draft", Content: "v0"})

	for _, v := range []string{"v1", "v2", "v3"} {
		require.NoError(t, svc.Autosave(ctx, n.ID, NoteInput{Title: "Draft", Content: v}))
	}
	require.Equal(t, 1, svc.PendingAutosaves())

	require.Eventually(t, func() bool {
		got, _ := svc.Get(ctx, n.ID)
		return got.Content == "v3"
	}, time.Second, 10*time.Millisecond)

	updates := 0
	for _, e := range log.all() {
		if strings.HasPrefix(e, sse.KindUpdated) {
			updates++
		}
	}
	require.Equal(t, 1, updates)
	require.Equal(t, "v3", storedNotes(t, slot)[0].Content)
}

func TestAutosave_RejectsBlankAndMissing(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	n, _ := svc.Create(ctx, NoteInput{Title: "T", Content: "C"})

	require.ErrorIs(t, svc.Autosave(ctx, "missing", NoteInput{Title: "a", Content: "b"}), apperr.ErrNotFound)
	require.ErrorIs(t, svc.Autosave(ctx, n.ID, NoteInput{Title: "", Content: "b"}), apperr.ErrInvalidNote)
	require.Equal(t, 0, svc.PendingAutosaves())
}

func TestAutosave_FlushAndSupersede(t *testing.T) {
	svc, _ := newService(t, nil, WithAutosaveDelay(time.Hour))
	ctx := context.Background()
	a, _ := svc.Create(ctx, NoteInput{Title: "A", Content: "a"})
	b, _ := svc.Create(ctx, NoteInput{Title: "B", Content: "b"})

	require.NoError(t, svc.Autosave(ctx, a.ID, NoteInput{Title: "A", Content: "draft"}))
	require.NoError(t, svc.Autosave(ctx, b.ID, NoteInput{Title: "B", Content: "draft"}))

	// An explicit update wins over the pending draft.
	_, err := svc.Update(ctx, b.ID, NoteInput{Title: "B", Content: "explicit"})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	gotA, _ := svc.Get(ctx, a.ID)
	gotB, _ := svc.Get(ctx, b.ID)
	require.Equal(t, "draft", gotA.Content)
	require.Equal(t, "explicit", gotB.Content)
}

func TestToggle_SavesPendingDraftFirst(t *testing.T) {
	slot := storage.NewMemory()
	svc, _ := newService(t, slot, WithAutosaveDelay(time.Hour))
	ctx := context.Background()
	n, _ := svc.Create(ctx, NoteInput{Title: "T", Content: "v0"})

	require.NoError(t, svc.Autosave(ctx, n.ID, NoteInput{Title: "T", Content: "draft", Pinned: false}))
	pinned, err := svc.TogglePin(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, pinned.Pinned)
	require.Equal(t, "draft", pinned.Content)
	require.Equal(t, 0, svc.PendingAutosaves())

	require.NoError(t, svc.Autosave(ctx, n.ID, NoteInput{Title: "T", Content: "draft 2", Pinned: true}))
	archived, err := svc.ToggleArchive(ctx, n.ID)
	require.NoError(t, err)
	require.True(t, archived.Archived)
	require.Equal(t, "draft 2", archived.Content)

	require.NoError(t, svc.Close())
	stored := storedNotes(t, slot)[0]
	require.True(t, stored.Pinned)
	require.True(t, stored.Archived)
	require.Equal(t, "draft 2", stored.Content)
}

func TestExport_EmptyCollection(t *testing.T) {
	svc, _ := newService(t, nil)
	_, _, err := svc.Export(context.Background())
	require.ErrorIs(t, err, apperr.ErrNothingToExport)
}

func TestExportThenImportIntoEmptyCollection(t *testing.T) {
	day := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	src, _ := newService(t, nil, WithClock(func() time.Time { return day }))
	ctx := context.Background()
	a, _ := src.Create(ctx, NoteInput{Title: "A", Content: "alpha", Pinned: true})
	b, _ := src.Create(ctx, NoteInput{Title: "B", Content: "beta"})
	_, _ = src.ToggleArchive(ctx, b.ID)

	name, data, err := src.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, "notes-backup-2026-10-19.json", name)

	dst, log := newService(t, nil)
	report, err := dst.Import(ctx, &transfer.File{Name: name, Size: int64(len(data))}, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, ImportReport{Imported: 2}, report)
	require.Equal(t, []string{sse.KindImported + ":"}, log.all())

	var exported []models.Note
	require.NoError(t, json.Unmarshal(data, &exported))
	got := dst.store.Notes()
	require.Len(t, got, 2)
	for i := range exported {
		require.Equal(t, exported[i].ID, got[i].ID)
		require.Equal(t, exported[i].Title, got[i].Title)
		require.Equal(t, exported[i].Pinned, got[i].Pinned)
		require.Equal(t, exported[i].Archived, got[i].Archived)
		require.True(t, exported[i].UpdatedAt.Equal(got[i].UpdatedAt))
	}
	require.ElementsMatch(t, []string{a.ID, b.ID}, []string{got[0].ID, got[1].ID})
}

func TestImport_CollisionsAndPartial(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	existing, _ := svc.Create(ctx, NoteInput{Title: "Mine", Content: "keep me"})

	payload := `[
		{"id": "` + existing.ID + `", "title": "Theirs", "content": "imported", "pinned": false, "archived": false, "updatedAt": "2026-01-01T00:00:00Z"},
		{"id": "x", "title": "", "content": "no title", "pinned": false, "archived": false, "updatedAt": "2026-01-01T00:00:00Z"},
		"garbage"
	]`
	report, err := svc.Import(ctx, &transfer.File{Name: "in.json", Size: int64(len(payload))}, strings.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)
	require.Equal(t, 2, report.Skipped)
	require.Equal(t, []int{2, 3}, report.SkippedPositions)

	kept, err := svc.Get(ctx, existing.ID)
	require.NoError(t, err)
	require.Equal(t, "Mine", kept.Title)

	notes, _ := svc.List(ctx, query.ModeAll, "")
	require.Len(t, notes, 2)
	require.NotEqual(t, notes[0].ID, notes[1].ID)
}

func TestImport_WholesaleRejections(t *testing.T) {
	svc, log := newService(t, nil)
	ctx := context.Background()
	file := func(name string, body string) (*transfer.File, *strings.Reader) {
		return &transfer.File{Name: name, Size: int64(len(body))}, strings.NewReader(body)
	}

	f, r := file("notes.txt", "[]")
	_, err := svc.Import(ctx, f, r)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Import(ctx, nil, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	f, r = file("notes.json", "{oops")
	_, err = svc.Import(ctx, f, r)
	require.ErrorIs(t, err, apperr.ErrImportFormat)

	f, r = file("notes.json", `{"id":"x"}`)
	_, err = svc.Import(ctx, f, r)
	require.ErrorIs(t, err, apperr.ErrImportFormat)

	f, r = file("notes.json", "[]")
	_, err = svc.Import(ctx, f, r)
	require.ErrorIs(t, err, apperr.ErrNothingToImport)

	f, r = file("notes.json", `[{"id":"x"}]`)
	_, err = svc.Import(ctx, f, r)
	require.ErrorIs(t, err, apperr.ErrImportFormat)
	require.Contains(t, err.Error(), "no valid notes")

	// Declared size lies; the reader is still capped.
	big := "[" + strings.Repeat(" ", transfer.MaxFileSize) + "]"
	_, err = svc.Import(ctx, &transfer.File{Name: "big.json", Size: 1}, strings.NewReader(big))
	require.ErrorIs(t, err, apperr.ErrValidation)

	require.Empty(t, log.all())
	require.Equal(t, 0, svc.store.Len())
}

func TestReload_PicksUpExternalChanges(t *testing.T) {
	slot := storage.NewMemory()
	svc, log := newService(t, slot)
	ctx := context.Background()
	_, _ = svc.Create(ctx, NoteInput{Title: "Local", Content: "l"})

	external := []models.Note{{ID: "ext", Title: "External", Content: "e", UpdatedAt: time.Now().UTC()}}
	raw, _ := json.Marshal(external)
	require.NoError(t, slot.Put(persist.DefaultKey, raw))

	require.NoError(t, svc.Reload(ctx))
	got, err := svc.Get(ctx, "ext")
	require.NoError(t, err)
	require.Equal(t, "External", got.Title)
	require.Equal(t, models.Counts{All: 1}, svc.Counts(ctx))
	require.Contains(t, log.all(), sse.KindReloaded+":")
}

func TestReload_CorruptCopyKeepsMemory(t *testing.T) {
	slot := storage.NewMemory()
	svc, log := newService(t, slot)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		_, err := svc.Create(ctx, NoteInput{Title: title, Content: title})
		require.NoError(t, err)
	}

	require.NoError(t, slot.Put(persist.DefaultKey, []byte(`{not json`)))
	require.ErrorIs(t, svc.Reload(ctx), apperr.ErrStorageRead)
	require.Equal(t, 3, svc.store.Len())
	require.NotContains(t, log.all(), sse.KindReloaded+":")

	_, err := svc.Create(ctx, NoteInput{Title: "d", Content: "d"})
	require.NoError(t, err)
	require.Len(t, storedNotes(t, slot), 4)
}

func TestReload_RemovedCopyIsRestored(t *testing.T) {
	slot := &brokenSlot{Provider: storage.NewMemory()}
	svc, _ := newService(t, slot)
	ctx := context.Background()
	_, _ = svc.Create(ctx, NoteInput{Title: "Keep", Content: "me"})

	slot.getErr = storage.ErrNoKey
	require.NoError(t, svc.Reload(ctx))
	slot.getErr = nil

	require.Equal(t, 1, svc.store.Len())
	stored := storedNotes(t, slot)
	require.Len(t, stored, 1)
	require.Equal(t, "Keep", stored[0].Title)
}

func TestReload_ReadFailureKeepsMemory(t *testing.T) {
	slot := &brokenSlot{Provider: storage.NewMemory()}
	svc, _ := newService(t, slot)
	ctx := context.Background()
	_, _ = svc.Create(ctx, NoteInput{Title: "Keep", Content: "me"})

	slot.getErr = errors.New("disk gone")
	require.ErrorIs(t, svc.Reload(ctx), apperr.ErrStorageRead)
	require.Equal(t, 1, svc.store.Len())
}

func TestIsUserError(t *testing.T) {
	require.True(t, IsUserError(apperr.ErrNotFound))
	require.True(t, IsUserError(apperr.ErrNothingToExport))
	require.False(t, IsUserError(apperr.ErrStorageWrite))
}
