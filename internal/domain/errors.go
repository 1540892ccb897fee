package domain

import "errors"

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrVersionConflict   = errors.New("version conflict")
	ErrConflict          = errors.New("conflicting concurrent write, retry with the same request id")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrItemsUnavailable  = errors.New("items unavailable")
	ErrTableUnavailable  = errors.New("table unavailable")
	ErrLockTimeout       = errors.New("request is being processed, retry with the same request id")
	ErrInvalidInput      = errors.New("invalid input")
)
