// Package hub owns the in-memory state and serialises every mutation of it.
//
// Run is the single goroutine that touches state.State. Socket sessions hand
// decoded messages to Dispatch, relay connections arrive through Attach and
// Detach, and a ticker drives the worker watchdog; all of them are funnelled
// into the loop over channels, so requests are applied one at a time in the
// order the loop receives them.
package hub
