// Package apperrors defines the error vocabulary shared by the chat core.
// Handlers map these onto HTTP statuses; services wrap them with context
// using fmt.Errorf and %w.
package apperrors

import "errors"

var (
	// ErrNotFound signals an unknown manager, customer, conversation or
	// message identifier. Never retried.
	ErrNotFound = errors.New("not found")

	// ErrValidation signals a malformed request (bad actor tag, empty
	// message, unknown enum value). Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNoChange signals that a delivered/read sweep moved nothing.
	// Callers use it to skip cache invalidation and notifications.
	ErrNoChange = errors.New("no change")
)
