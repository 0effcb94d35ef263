package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrInvalidDate        = errors.New("invalid date")
	ErrIncompleteSnapshot = errors.New("incomplete snapshot")
	ErrEmptyStore         = errors.New("snapshot store is empty")
	ErrLockHeld           = errors.New("lock already held")
)
