package repository

import "errors"

// ErrNotFound is returned when a row the caller asked for does not exist.
var ErrNotFound = errors.New("not found")
