// Package transfer validates imported note records and serializes exports.
package transfer

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/jotter/internal/models"
)

// dateLayouts are the timestamp forms accepted for updatedAt. Layouts
// without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

var (
	errNotString = errors.New("must be a string")
	errBlank     = errors.New("must not be blank")
	errNotBool   = errors.New("must be a boolean")
	errNotDate   = errors.New("must be a valid date/time")
)

// Validate reports whether candidate is a structurally valid note record:
// a JSON object with non-blank string id, title and content, boolean
// pinned and archived, and a parseable updatedAt.
func Validate(candidate any) bool {
	return validateRecord(candidate) == nil
}

func validateRecord(candidate any) error {
	m, ok := candidate.(map[string]any)
	if !ok || m == nil {
		return errors.New("must be an object")
	}
	return validation.Errors{
		"id":        validation.Validate(m["id"], validation.By(nonBlankString)),
		"title":     validation.Validate(m["title"], validation.By(nonBlankString)),
		"content":   validation.Validate(m["content"], validation.By(nonBlankString)),
		"pinned":    validation.Validate(m["pinned"], validation.By(strictBool)),
		"archived":  validation.Validate(m["archived"], validation.By(strictBool)),
		"updatedAt": validation.Validate(m["updatedAt"], validation.By(dateTime)),
	}.Filter()
}

// toNote converts a record that passed validateRecord.
func toNote(m map[string]any) models.Note {
	ts, _ := parseDateTime(m["updatedAt"].(string))
	return models.Note{
		ID:        m["id"].(string),
		Title:     strings.TrimSpace(m["title"].(string)),
		Content:   strings.TrimSpace(m["content"].(string)),
		Pinned:    m["pinned"].(bool),
		Archived:  m["archived"].(bool),
		UpdatedAt: ts,
	}
}

func nonBlankString(value any) error {
	s, ok := value.(string)
	if !ok {
		return errNotString
	}
	if strings.TrimSpace(s) == "" {
		return errBlank
	}
	return nil
}

func strictBool(value any) error {
	if _, ok := value.(bool); !ok {
		return errNotBool
	}
	return nil
}

func dateTime(value any) error {
	s, ok := value.(string)
	if !ok {
		return errNotString
	}
	if _, err := parseDateTime(s); err != nil {
		return errNotDate
	}
	return nil
}

func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
