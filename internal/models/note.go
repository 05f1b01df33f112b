// Package models defines the domain types for Jotter.
package models

import "time"

// Note is a single user-authored record.
//
// The JSON layout is the persisted and exported format; field names are
// part of the on-disk contract.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Pinned    bool      `json:"pinned"`
	Archived  bool      `json:"archived"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Counts holds the number of notes visible under each filter tab.
type Counts struct {
	All      int `json:"all"`
	Pinned   int `json:"pinned"`
	Archived int `json:"archived"`
}
