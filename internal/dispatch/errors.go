package dispatch

import "errors"

var (
	ErrAlreadyRunning = errors.New("dispatch: worker already running")
	ErrInvalidRoom    = errors.New("dispatch: invalid room")
	// ErrStopped is reported for a message that was dequeued but not sent
	// because the worker was stopped during its delay.
	ErrStopped = errors.New("dispatch stopped")
)
