// Package logs reads the hub log file for `mediahub logs`.
//
// Last returns the final lines with bounded memory and the offset to resume
// from; Follow polls from an offset and hands each new line to a callback
// until its context ends. A file that shrinks below the offset was truncated
// or replaced and is read again from the start.
package logs
