package api

import (
	"github.com/starford/jotter/internal/models"
	"github.com/starford/jotter/internal/noteservice"
)

// NoteRequest is the request body for creating, updating or autosaving a note.
type NoteRequest struct {
	Title   string `json:"title" example:"Groceries" validate:"required"`
	Content string `json:"content" example:"Milk, eggs" validate:"required"`
	Pinned  bool   `json:"pinned" example:"false"`
}

func (r NoteRequest) input() noteservice.NoteInput {
	return noteservice.NoteInput{Title: r.Title, Content: r.Content, Pinned: r.Pinned}
}

// NoteListResponse is the filtered view plus the counts for every tab.
type NoteListResponse struct {
	Notes  []models.Note `json:"notes" validate:"required"`
	Counts models.Counts `json:"counts" validate:"required"`
}

// ImportResponse reports how many records were imported and skipped.
type ImportResponse = noteservice.ImportReport
