// Package apperr holds sentinel errors shared by the service and transport layers.
package apperr

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
	// ErrReindexFailed wraps any storage failure that aborted a reindex batch.
	ErrReindexFailed = errors.New("reindex failed")
)
