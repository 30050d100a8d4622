package tray

import "errors"

// Sentinel kinds for tray errors.
var (
	ErrInvalidConfig = errors.New("invalid tray config")
	ErrClosed        = errors.New("surface closed")
)
