package domain

import "errors"

var (
	// ErrValidation marks a missing or malformed required field.
	ErrValidation = errors.New("validation error")
	// ErrProvider marks a non-2xx answer or transport failure from the push provider
	// or the credential exchange.
	ErrProvider = errors.New("provider error")
	// ErrNotFound marks a missing device group mapping or schedule row.
	ErrNotFound = errors.New("not found")
	// ErrStore marks a failed data store operation.
	ErrStore = errors.New("store error")
)
