package service

import "errors"

// Sentinel error kinds for the service.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrSeed           = errors.New("seed failed")
	ErrUnknownTray    = errors.New("unknown tray")
	ErrUnknownName    = errors.New("unknown name")
	ErrUnknownMethod  = errors.New("unknown program")
	ErrUnknownContext = errors.New("unknown cultural context")
	ErrNoRanking      = errors.New("dimension is not ranked")
)
