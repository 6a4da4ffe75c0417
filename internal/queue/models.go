package queue

import (
	"encoding/json"
	"time"

	"mediahub/internal/wire"
)

// Status represents the lifecycle of a queue job.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInFlight Status = "in_flight"
)

// Job is one transcode request tracked by the queue.
type Job struct {
	ID         string
	InputFile  string
	Status     Status
	StatusText string
	Progress   json.RawMessage
	EnqueuedAt time.Time
	ClaimedAt  time.Time
	UpdatedAt  time.Time
}

// Wire converts the job into its protocol representation.
func (j *Job) Wire() wire.Job {
	out := wire.Job{
		ID:        j.ID,
		InputFile: j.InputFile,
		Status:    string(j.Status),
		Progress:  j.Progress,
	}
	if j.StatusText != "" {
		out.Status = string(j.Status) + ": " + j.StatusText
	}
	return out
}

// Age returns how long the job has existed.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.EnqueuedAt)
}
