// Package query derives the visible, ordered view of the note collection.
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/jotter/internal/models"
)

// Mode selects which subset of notes is visible.
type Mode string

const (
	ModeAll      Mode = "all"      // not archived
	ModePinned   Mode = "pinned"   // pinned and not archived
	ModeArchived Mode = "archived" // archived, pinned or not
)

// ParseMode converts a filter name to a Mode. The empty string is ModeAll.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAll, nil
	case ModeAll, ModePinned, ModeArchived:
		return m, nil
	default:
		return "", fmt.Errorf("unknown filter mode %q", s)
	}
}

// Matches reports whether n is visible under the mode.
func (m Mode) Matches(n models.Note) bool {
	switch m {
	case ModePinned:
		return n.Pinned && !n.Archived
	case ModeArchived:
		return n.Archived
	default:
		return !n.Archived
	}
}

// FilteredView returns the notes visible under mode whose title or content
// contains search (case-insensitive), pinned first, then most recently
// updated first. Equal keys keep their relative order. notes is not modified.
func FilteredView(notes []models.Note, mode Mode, search string) []models.Note {
	var needle string
	if strings.TrimSpace(search) != "" {
		needle = strings.ToLower(search)
	}

	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if !mode.Matches(n) {
			continue
		}
		if needle != "" && !containsFold(n, needle) {
			continue
		}
		out = append(out, n)
	}

	slices.SortStableFunc(out, func(a, b models.Note) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

// Count returns the size of each filter tab.
func Count(notes []models.Note) models.Counts {
	var c models.Counts
	for _, n := range notes {
		if ModeAll.Matches(n) {
			c.All++
		}
		if ModePinned.Matches(n) {
			c.Pinned++
		}
		if ModeArchived.Matches(n) {
			c.Archived++
		}
	}
	return c
}

func containsFold(n models.Note, needle string) bool {
	return strings.Contains(strings.ToLower(n.Title), needle) ||
		strings.Contains(strings.ToLower(n.Content), needle)
}
