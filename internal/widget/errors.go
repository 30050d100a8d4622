package widget

import "errors"

// Sentinel kinds for widget errors.
var (
	ErrInvalidKind         = errors.New("invalid widget kind")
	ErrUnknownKind         = errors.New("unknown widget kind")
	ErrUnknownRegistration = errors.New("unknown widget registration")
	ErrWrongRole           = errors.New("widget kind has the wrong role")
	ErrInvalidFactory      = errors.New("invalid widget factory")
	ErrUnbound             = errors.New("widget not bound to a delegate")
	ErrClosed              = errors.New("widget closed")
)
