package attendance

import "errors"

// Domain error taxonomy. NotFound errors are surfaced and never retried,
// conflict errors are expected under concurrency and mean "someone else
// already did this", expiry errors tell the caller to ask for a fresh token.
var (
	ErrClassNotFound   = errors.New("class not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyActive   = errors.New("class already has an active session")
	ErrInvalidToken    = errors.New("no session matches token")
	ErrSessionExpired  = errors.New("session expired")
	ErrNotEnrolled     = errors.New("student not enrolled in class")
	ErrAlreadyRecorded = errors.New("attendance already recorded for session")
)
