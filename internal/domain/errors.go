package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrMalformedSnapshot = errors.New("malformed listing snapshot")
	ErrInvalidWatch      = errors.New("invalid watch")
)
