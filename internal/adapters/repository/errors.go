package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("entry not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrBackend      = errors.New("store backend failure")
	ErrInvalidLimit = errors.New("invalid limit")
)
