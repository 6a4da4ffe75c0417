// Package queue holds the hub's transcode job queue in memory.
//
// Jobs are appended at the tail and claimed from the head, so arrival order is
// preserved. A claimed job moves to the in-flight set, where it collects
// progress and status reports from the converter until completion removes it.
// Completion matches on the exact input file and is idempotent.
//
// The queue is not safe for concurrent use. The hub loop owns it and is the
// only goroutine that mutates it. Nothing survives a hub restart.
package queue
