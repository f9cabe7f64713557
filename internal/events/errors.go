package events

import "errors"

var (
	// ErrClosed is returned when publishing to a log whose done event was already written.
	ErrClosed = errors.New("event log closed")

	// ErrRunExists is returned when opening a log for a run ID already in use.
	ErrRunExists = errors.New("run already has an event log")

	// ErrRunNotFound is returned for unknown or swept run IDs.
	ErrRunNotFound = errors.New("run not found")
)
