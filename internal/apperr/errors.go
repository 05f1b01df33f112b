// Package apperr defines the error kinds shared across layers.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidNote means title or content is empty after trimming.
	ErrInvalidNote = errors.New("invalid note")

	// ErrStorageRead and ErrStorageWrite are reported, never fatal: the
	// in-memory collection stays authoritative.
	ErrStorageRead  = errors.New("storage read failed")
	ErrStorageWrite = errors.New("storage write failed")

	// ErrValidation rejects an import file before any parsing happens.
	ErrValidation = errors.New("validation failed")
	// ErrImportFormat rejects a whole import: bad JSON, non-array payload or no valid records.
	ErrImportFormat    = errors.New("invalid import format")
	ErrNothingToImport = errors.New("nothing to import")
	ErrNothingToExport = errors.New("nothing to export")
)
