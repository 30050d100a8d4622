package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrInvalidHash  = errors.New("invalid hash")
	ErrEncode       = errors.New("entry encoding failed")
	ErrInvalidRange = errors.New("invalid range")
	ErrInvalidValue = errors.New("invalid range value")
	ErrOutOfRange   = errors.New("value out of range")
	ErrInvalidEntry = errors.New("invalid entry")
)
