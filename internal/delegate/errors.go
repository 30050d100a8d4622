package delegate

import "errors"

// Sentinel kinds for delegate errors.
var (
	// ErrReleased is returned by writes on a delegate whose lease was released.
	ErrReleased = errors.New("delegate released")
	// ErrCreateAssessment wraps backend failures of CreateAssessment.
	ErrCreateAssessment = errors.New("create assessment failed")
)
