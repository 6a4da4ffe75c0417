package queue

import "errors"

var (
	// ErrEmptyInput rejects jobs without an input file.
	ErrEmptyInput = errors.New("queue: input file required")
	// ErrDuplicate rejects a file that is already pending or in flight.
	ErrDuplicate = errors.New("queue: input file already queued")
)
