package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrStale         = errors.New("record no longer present")
	ErrNoSelection   = errors.New("no record selected")
	ErrInvalidField  = errors.New("invalid field value")
	ErrUnknownField  = errors.New("unknown field")
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownTable  = errors.New("unknown table")
	ErrRejected      = errors.New("rejected by system of record")
	ErrLockHeld      = errors.New("lock already held")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
)
