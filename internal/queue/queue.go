package queue

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Queue is a FIFO of pending jobs plus the set of claimed, in-flight jobs.
type Queue struct {
	pending  []*Job
	inFlight map[string]*Job
	now      func() time.Time
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		inFlight: make(map[string]*Job),
		now:      time.Now,
	}
}

// Enqueue appends a job for inputFile at the tail.
func (q *Queue) Enqueue(inputFile string) (*Job, error) {
	inputFile = strings.TrimSpace(inputFile)
	if inputFile == "" {
		return nil, ErrEmptyInput
	}
	if q.Contains(inputFile) {
		return nil, ErrDuplicate
	}
	now := q.now()
	job := &Job{
		ID:         uuid.NewString(),
		InputFile:  inputFile,
		Status:     StatusPending,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	q.pending = append(q.pending, job)
	return job, nil
}

// Claim removes the head of the queue and records it as in flight. It
// returns false when no job is pending.
func (q *Queue) Claim() (*Job, bool) {
	if len(q.pending) == 0 {
		return nil, false
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	now := q.now()
	job.Status = StatusInFlight
	job.ClaimedAt = now
	job.UpdatedAt = now
	q.inFlight[job.InputFile] = job
	return job, true
}

// Complete drops every record of inputFile, pending or in flight. Completing
// an unknown file is not an error; the return value reports whether anything
// was removed.
func (q *Queue) Complete(inputFile string) bool {
	removed := false
	if _, ok := q.inFlight[inputFile]; ok {
		delete(q.inFlight, inputFile)
		removed = true
	}
	kept := q.pending[:0]
	for _, job := range q.pending {
		if job.InputFile == inputFile {
			removed = true
			continue
		}
		kept = append(kept, job)
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = nil
	}
	q.pending = kept
	return removed
}

// RecordProgress stores the latest progress payload on an in-flight job. When
// inputFile is empty the sole in-flight job is used.
func (q *Queue) RecordProgress(inputFile string, progress json.RawMessage) bool {
	job := q.lookupInFlight(inputFile)
	if job == nil {
		return false
	}
	job.Progress = append(json.RawMessage(nil), progress...)
	job.UpdatedAt = q.now()
	return true
}

// RecordStatus stores a free-form status line on an in-flight job.
func (q *Queue) RecordStatus(inputFile, status string) bool {
	job := q.lookupInFlight(inputFile)
	if job == nil {
		return false
	}
	job.StatusText = strings.TrimSpace(status)
	job.UpdatedAt = q.now()
	return true
}

func (q *Queue) lookupInFlight(inputFile string) *Job {
	if inputFile != "" {
		return q.inFlight[inputFile]
	}
	if len(q.inFlight) != 1 {
		return nil
	}
	for _, job := range q.inFlight {
		return job
	}
	return nil
}

// Contains reports whether inputFile is pending or in flight.
func (q *Queue) Contains(inputFile string) bool {
	if _, ok := q.inFlight[inputFile]; ok {
		return true
	}
	for _, job := range q.pending {
		if job.InputFile == inputFile {
			return true
		}
	}
	return false
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.pending)
}

// InFlightLen returns the number of claimed, unfinished jobs.
func (q *Queue) InFlightLen() int {
	return len(q.inFlight)
}

// Pending returns a snapshot of pending jobs in queue order.
func (q *Queue) Pending() []Job {
	out := make([]Job, 0, len(q.pending))
	for _, job := range q.pending {
		out = append(out, *job)
	}
	return out
}

// InFlight returns a snapshot of claimed jobs ordered by claim time.
func (q *Queue) InFlight() []Job {
	out := make([]Job, 0, len(q.inFlight))
	for _, job := range q.inFlight {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClaimedAt.Before(out[j].ClaimedAt)
	})
	return out
}
