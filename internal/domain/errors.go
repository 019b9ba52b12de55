package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyFinalized is returned when a finalization attempt loses the
	// transaction gate: a committed result already exists for the poll.
	ErrAlreadyFinalized = errors.New("poll already finalized")

	// ErrPollStillOpen is returned when finalization is requested for a poll
	// that has not been closed yet.
	ErrPollStillOpen = errors.New("poll still open")
)
