// Package converter is the transcode worker that the hub supervises.
//
// A Worker polls the hub for jobs, runs the configured encoder command for
// each one, and reports back over the hub socket: a status line when work
// starts, elapsed-time progress while the encoder runs, and completion when it
// exits. Progress carries no percentage; the hub only records the payload.
//
// Output files land in the configured output directory as <name>.mp4.
package converter
