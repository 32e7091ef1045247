package upload

import "errors"

var (
	// ErrNotFound covers both a missing row and a row owned by someone
	// else. Callers must not be able to tell the two apart.
	ErrNotFound = errors.New("upload not found")

	ErrNoFile          = errors.New("no file provided")
	ErrEmptyName       = errors.New("name cannot be empty")
	ErrNoStoredFile    = errors.New("upload has no stored file")
	ErrNoContent       = errors.New("upload has no captured content to summarize")
	ErrNothingToExport = errors.New("none of the requested uploads can be exported")
	ErrSummarizer      = errors.New("summarization call failed")
)
