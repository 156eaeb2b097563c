// Package errs holds the sentinel errors shared by the store, service and transport layers.
package errs

import "errors"

var (
	// ErrAuthentication means the credential token is missing, malformed or expired.
	ErrAuthentication = errors.New("authentication failed")

	// ErrValidation means a request or event is missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence means the store could not complete a read or write.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrForbidden means the caller is authenticated but not allowed to act on the entity.
	ErrForbidden = errors.New("forbidden")
)
