// Package supervisor owns the hub's static roster of worker processes.
//
// Each Process follows a three-state lifecycle: NotStarted, Running, and
// Exited with an exit code. Start launches the command in its own process
// group and returns immediately; a waiter goroutine records the exit. Terminate
// sends SIGTERM and Kill sends SIGKILL to the whole group. IsRunning is a
// non-blocking check of the recorded lifecycle.
//
// Supervisor.Tick is the watchdog: the hub calls it on a fixed interval and it
// starts workers that never ran and restarts exited ones according to the
// configured policy, with exponential backoff between attempts.
package supervisor
