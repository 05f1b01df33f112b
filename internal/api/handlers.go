package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/jotter/internal/noteservice"
	"github.com/starford/jotter/internal/query"
	"github.com/starford/jotter/internal/transfer"
)

const (
	maxBodyBytes = 1 << 20
	// multipart framing on top of the import file itself
	maxImportBody = transfer.MaxFileSize + 1<<20
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

func decodeNote(w http.ResponseWriter, r *http.Request) (NoteRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return req, false
	}
	return req, true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List the notes of one tab, optionally searched
//	@Tags			notes
//	@Produce		json
//	@Param			filter	query		string	false	"Tab"	Enums(all, pinned, archived)
//	@Param			q		query		string	false	"Case-insensitive search in title and content"
//	@Success		200		{object}	NoteListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := query.ParseMode(q.Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	notes, counts := h.svc.List(r.Context(), mode, q.Get("q"))
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Counts: counts})
}

// Counts handles GET /api/counts.
//
//	@Summary		Per-tab note counts
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	models.Counts
//	@Security		BearerAuth
//	@Router			/counts [get]
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Counts(r.Context()))
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		NoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNote(w, r)
	if !ok {
		return
	}
	note, err := h.svc.Create(r.Context(), req.input())
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Replace a note's title, content and pinned flag
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Note id"
//	@Param			body	body		NoteRequest	true	"Updated fields"
//	@Success		200		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNote(w, r)
	if !ok {
		return
	}
	note, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// SaveDraft handles PATCH /api/notes/{id}/draft. The draft is saved once
// edits have been quiet for the autosave delay.
//
//	@Summary		Schedule an autosave of an edited note
//	@Tags			notes
//	@Accept			json
//	@Param			id		path	string		true	"Note id"
//	@Param			body	body	NoteRequest	true	"Draft"
//	@Success		202		"Draft scheduled"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/draft [patch]
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeNote(w, r)
	if !ok {
		return
	}
	if err := h.svc.Autosave(r.Context(), chi.URLParam(r, "id"), req.input()); err != nil {
		writeError(w, "autosave", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TogglePin handles POST /api/notes/{id}/pin.
//
//	@Summary		Flip the pinned flag
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pin [post]
func (h *Handler) TogglePin(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.TogglePin(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "toggle pin", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// ToggleArchive handles POST /api/notes/{id}/archive.
//
//	@Summary		Flip the archived flag
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/archive [post]
func (h *Handler) ToggleArchive(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.ToggleArchive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "toggle archive", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Export handles GET /api/export.
//
//	@Summary		Download every note as a JSON backup
//	@Tags			backup
//	@Produce		json
//	@Success		200	{array}		models.Note
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	name, data, err := h.svc.Export(r.Context())
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import handles POST /api/import (multipart/form-data, field "file").
//
//	@Summary		Import notes from a JSON backup
//	@Tags			backup
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Backup file"
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Failure		415		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)

	if err := r.ParseMultipartForm(maxImportBody); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, "import", transfer.ErrTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	meta := &transfer.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	report, err := h.svc.Import(r.Context(), meta, file)
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
