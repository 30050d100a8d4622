package registry

import "errors"

// ErrResolution wraps every resolution failure.
var ErrResolution = errors.New("widget resolution failed")

// Sentinel kinds for resolution failures.
var (
	ErrNoActiveMethod      = errors.New("no active method for resource definition")
	ErrMethodNotFound      = errors.New("method not registered")
	ErrWidgetNotRegistered = errors.New("no widget registered for dimension")
	ErrInvalidMethod       = errors.New("invalid method")
)
