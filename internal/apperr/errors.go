// Package apperr defines the sentinel errors shared by the service and
// transport layers. Handlers map them to HTTP statuses with errors.Is.
package apperr

import "errors"

var (
	// ErrNotFound covers missing notes, documents, bases, and views.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals an If-Match checksum mismatch on update.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExists signals a create against an existing path.
	ErrAlreadyExists = errors.New("already exists")
)
