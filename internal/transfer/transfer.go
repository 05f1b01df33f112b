package transfer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/jotter/internal/apperr"
	"github.com/starford/jotter/internal/models"
)

// MaxFileSize is the largest import file accepted.
const MaxFileSize = 10 << 20 // 10 MiB

// Boundary rejections. Both wrap apperr.ErrValidation.
var (
	ErrUnsupportedType = fmt.Errorf("%w: please select a valid JSON file", apperr.ErrValidation)
	ErrTooLarge        = fmt.Errorf("%w: file is too large, maximum size is 10MB", apperr.ErrValidation)
)

// File describes an import file at the boundary, before it is read.
type File struct {
	Name        string
	ContentType string
	Size        int64
}

// CheckFile applies the type and size gate. A nil file is "no file
// selected".
func CheckFile(f *File) error {
	if f == nil {
		return fmt.Errorf("%w: no file selected", apperr.ErrValidation)
	}
	if !jsonLike(f) {
		return ErrUnsupportedType
	}
	err := validation.ValidateStruct(f,
		validation.Field(&f.Size, validation.Max(int64(MaxFileSize))),
	)
	if err != nil {
		return ErrTooLarge
	}
	return nil
}

func jsonLike(f *File) bool {
	return strings.Contains(strings.ToLower(f.ContentType), "json") ||
		strings.EqualFold(filepath.Ext(f.Name), ".json")
}

// DecodeCandidates parses an import payload. It must be a JSON array; an
// empty array yields apperr.ErrNothingToImport.
func DecodeCandidates(data []byte) ([]any, error) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON format, please check your file", apperr.ErrImportFormat)
	}
	items, ok := payload.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: file must contain an array of notes", apperr.ErrImportFormat)
	}
	if len(items) == 0 {
		return nil, apperr.ErrNothingToImport
	}
	return items, nil
}

// Result is the outcome of ImportBatch.
type Result struct {
	Accepted []models.Note
	// RejectedPositions are 1-based indexes into the candidate list.
	RejectedPositions []int
}

// RejectedCount is the number of dropped candidates.
func (r Result) RejectedCount() int { return len(r.RejectedPositions) }

// ImportBatch validates candidates in order. Accepted records are trimmed;
// a record whose id is already used by existing or by an earlier accepted
// record gets a fresh id from newID, so nothing is silently overwritten.
func ImportBatch(existing []models.Note, candidates []any, newID func() string) Result {
	taken := make(map[string]struct{}, len(existing)+len(candidates))
	for _, n := range existing {
		taken[n.ID] = struct{}{}
	}

	res := Result{Accepted: []models.Note{}}
	for i, c := range candidates {
		if validateRecord(c) != nil {
			res.RejectedPositions = append(res.RejectedPositions, i+1)
			continue
		}
		n := toNote(c.(map[string]any))
		if _, dup := taken[n.ID]; dup {
			n.ID = freshID(taken, newID)
		}
		taken[n.ID] = struct{}{}
		res.Accepted = append(res.Accepted, n)
	}
	return res
}

func freshID(taken map[string]struct{}, newID func() string) string {
	for {
		id := newID()
		if _, dup := taken[id]; !dup && id != "" {
			return id
		}
	}
}

// Export serializes notes as a pretty-printed JSON array.
func Export(notes []models.Note) ([]byte, error) {
	if notes == nil {
		notes = []models.Note{}
	}
	data, err := json.MarshalIndent(notes, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return data, nil
}

// ExportFilename names a backup taken at now.
func ExportFilename(now time.Time) string {
	return "notes-backup-" + now.UTC().Format(time.DateOnly) + ".json"
}
