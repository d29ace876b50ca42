package service

import "errors"

var (
	// ErrValidation marks malformed or missing fields in an inbound
	// request. Surfaced to the originating caller only, never broadcast.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an operation against a nonexistent call or
	// message.
	ErrNotFound = errors.New("not found")
)
