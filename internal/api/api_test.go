package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/noteservice"
	"github.com/starford/jotter/internal/persist"
	"github.com/starford/jotter/internal/testutil"
	"github.com/starford/jotter/internal/transfer"
)

// testEnv sets up an in-memory service and router. An empty authToken means
// disabled mode.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()
	svc := testutil.Service(t, noteservice.WithAutosaveDelay(10*time.Millisecond))
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createNote(t *testing.T, router http.Handler, title, content string) models.Note {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notes", map[string]any{"title": title, "content": content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var n models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	created := createNote(t, router, "  Hello ", "World")
	if created.Title != "Hello" {
		t.Errorf("title = %q, want trimmed Hello", created.Title)
	}

	w := do(t, router, http.MethodGet, "/notes/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ID != created.ID || got.Content != "World" {
		t.Errorf("got %+v", got)
	}
}

func TestCreateNote_WritesThrough(t *testing.T) {
	slot := testutil.FSSlot(t)
	svc, _ := testutil.ServiceOn(t, slot)
	router := NewRouter(svc, false, "", nil)

	n := createNote(t, router, "Durable", "on disk")

	raw, err := slot.Get(persist.DefaultKey)
	if err != nil {
		t.Fatalf("slot read: %v", err)
	}
	stored, err := persist.Decode(raw)
	if err != nil || len(stored) != 1 || stored[0].ID != n.ID {
		t.Errorf("stored = %+v, err = %v", stored, err)
	}
}

func TestCreateNote_Invalid(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", map[string]any{"title": "   ", "content": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank title = %d, want 400", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestUpdateNote(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "T", "v1")

	w := do(t, router, http.MethodPut, "/notes/"+n.ID, map[string]any{"title": "T", "content": "v2", "pinned": true})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Content != "v2" || !got.Pinned {
		t.Errorf("got %+v", got)
	}
	if !got.UpdatedAt.After(n.UpdatedAt) && !got.UpdatedAt.Equal(n.UpdatedAt) {
		t.Errorf("updatedAt went backwards")
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/notes/missing", map[string]any{"title": "a", "content": "b"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/notes/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "Bye", "soon gone")

	w := do(t, router, http.MethodDelete, "/notes/"+n.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/notes/"+n.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListNotes_FilterSearchAndCounts(t *testing.T) {
	_, router := testEnv(t, "")
	groceries := createNote(t, router, "Groceries", "Milk, eggs")
	createNote(t, router, "Work", "Quarterly report")

	if w := do(t, router, http.MethodPost, "/notes/"+groceries.ID+"/pin", nil); w.Code != http.StatusOK {
		t.Fatalf("pin = %d", w.Code)
	}

	w := do(t, router, http.MethodGet, "/notes?filter=pinned", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notes) != 1 || resp.Notes[0].ID != groceries.ID {
		t.Errorf("pinned view = %+v", resp.Notes)
	}
	if resp.Counts != (models.Counts{All: 2, Pinned: 1}) {
		t.Errorf("counts = %+v", resp.Counts)
	}

	w = do(t, router, http.MethodGet, "/notes?q=MILK", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notes) != 1 || resp.Notes[0].Title != "Groceries" {
		t.Errorf("search view = %+v", resp.Notes)
	}

	w = do(t, router, http.MethodGet, "/notes?filter=trash", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown filter = %d, want 400", w.Code)
	}
}

func TestToggleArchiveAndCounts(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "Old", "stuff")

	w := do(t, router, http.MethodPost, "/notes/"+n.ID+"/archive", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("archive = %d", w.Code)
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if !got.Archived {
		t.Error("note not archived")
	}

	w = do(t, router, http.MethodGet, "/counts", nil)
	var counts models.Counts
	_ = json.Unmarshal(w.Body.Bytes(), &counts)
	if counts != (models.Counts{Archived: 1}) {
		t.Errorf("counts = %+v", counts)
	}

	if w := do(t, router, http.MethodPost, "/notes/missing/pin", nil); w.Code != http.StatusNotFound {
		t.Errorf("pin missing = %d, want 404", w.Code)
	}
}

func TestSaveDraft(t *testing.T) {
	svc, router := testEnv(t, "")
	n := createNote(t, router, "Draft", "v0")

	for _, v := range []string{"v1", "v2"} {
		w := do(t, router, http.MethodPatch, "/notes/"+n.ID+"/draft", map[string]any{"title": "Draft", "content": v})
		if w.Code != http.StatusAccepted {
			t.Fatalf("draft = %d, body = %s", w.Code, w.Body.String())
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := svc.Get(context.Background(), n.ID)
		if got.Content == "v2" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("draft was never saved")
}

func TestSaveDraft_Invalid(t *testing.T) {
	_, router := testEnv(t, "")
	n := createNote(t, router, "Draft", "v0")

	w := do(t, router, http.MethodPatch, "/notes/"+n.ID+"/draft", map[string]any{"title": "Draft", "content": " "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank draft = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPatch, "/notes/missing/draft", map[string]any{"title": "a", "content": "b"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing draft = %d, want 404", w.Code)
	}
}

func TestExport(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/export", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("empty export = %d, want 409", w.Code)
	}

	createNote(t, router, "A", "alpha")
	w = do(t, router, http.MethodGet, "/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.HasPrefix(cd, `attachment; filename="notes-backup-`) || !strings.HasSuffix(cd, `.json"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var notes []models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &notes); err != nil || len(notes) != 1 {
		t.Errorf("export body = %s", w.Body.String())
	}
}

// Import tests.

func uploadFile(t *testing.T, router http.Handler, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestExportThenImport(t *testing.T) {
	_, src := testEnv(t, "")
	a := createNote(t, src, "A", "alpha")
	b := createNote(t, src, "B", "beta")
	backup := do(t, src, http.MethodGet, "/export", nil).Body.Bytes()

	_, dst := testEnv(t, "")
	w := uploadFile(t, dst, "notes-backup.json", "application/json", backup)
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	var report ImportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &report)
	if report.Imported != 2 || report.Skipped != 0 {
		t.Errorf("report = %+v", report)
	}

	for _, id := range []string{a.ID, b.ID} {
		if w := do(t, dst, http.MethodGet, "/notes/"+id, nil); w.Code != http.StatusOK {
			t.Errorf("imported note %s = %d", id, w.Code)
		}
	}
}

func TestImport_PartialReport(t *testing.T) {
	_, router := testEnv(t, "")
	payload := `[
		{"id":"1","title":"ok","content":"fine","pinned":false,"archived":false,"updatedAt":"2026-01-01T00:00:00Z"},
		{"id":"2","title":"","content":"no title","pinned":false,"archived":false,"updatedAt":"2026-01-01T00:00:00Z"}
	]`
	w := uploadFile(t, router, "in.json", "application/json", []byte(payload))
	if w.Code != http.StatusOK {
		t.Fatalf("import = %d, body = %s", w.Code, w.Body.String())
	}
	var report ImportResponse
	_ = json.Unmarshal(w.Body.Bytes(), &report)
	if report.Imported != 1 || report.Skipped != 1 || len(report.SkippedPositions) != 1 || report.SkippedPositions[0] != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestImport_BoundaryErrors(t *testing.T) {
	_, router := testEnv(t, "")

	tests := []struct {
		name        string
		filename    string
		contentType string
		body        string
		want        int
	}{
		{"not json", "notes.txt", "text/plain", "[]", http.StatusUnsupportedMediaType},
		{"malformed", "notes.json", "application/json", "{oops", http.StatusUnprocessableEntity},
		{"not an array", "notes.json", "application/json", `{"id":"x"}`, http.StatusUnprocessableEntity},
		{"empty array", "notes.json", "application/json", "[]", http.StatusUnprocessableEntity},
		{"no valid records", "notes.json", "application/json", `[{"id":"x"}]`, http.StatusUnprocessableEntity},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := uploadFile(t, router, tc.filename, tc.contentType, []byte(tc.body))
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestImport_MissingFileField(t *testing.T) {
	_, router := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestImport_TooLarge(t *testing.T) {
	_, router := testEnv(t, "")
	big := bytes.Repeat([]byte(" "), maxImportBody+1)
	w := uploadFile(t, router, "big.json", "application/json", big)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized import = %d, want 413", w.Code)
	}
}

func TestWriteError_Messages(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"bare kind", apperr.ErrNotFound, http.StatusNotFound, "not found"},
		{"derived kind", transfer.ErrUnsupportedType, http.StatusUnsupportedMediaType, "please select a valid JSON file"},
		{"detail with separators", fmt.Errorf("%w: error reading file: unexpected EOF", apperr.ErrImportFormat),
			http.StatusUnprocessableEntity, "error reading file: unexpected EOF"},
		{"nested validation", fmt.Errorf("%w: title: cannot be blank.", apperr.ErrInvalidNote),
			http.StatusBadRequest, "title: cannot be blank."},
		{"internal", errors.New("disk: on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, "test", tc.err)
			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			var body errResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tc.msg {
				t.Errorf("message = %q, want %q", body.Error, tc.msg)
			}
		})
	}
}

// Auth tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnvWithSSE(t, false, "ignored", nil)
	w := do(t, router, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Errorf("disabled mode = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request is cancelled.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
