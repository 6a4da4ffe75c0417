package supervisor

import "time"

// Phase is the lifecycle position of a worker process.
type Phase string

// Worker lifecycle phases.
const (
	PhaseNotStarted Phase = "not_started"
	PhaseRunning    Phase = "running"
	PhaseExited     Phase = "exited"
)

// Lifecycle is a point-in-time view of one worker.
type Lifecycle struct {
	Phase     Phase
	PID       int
	ExitCode  int
	StartedAt time.Time
	ExitedAt  time.Time
	Restarts  int
	LastError error
}

// Policy decides whether an exited worker is started again.
type Policy string

// Restart policies.
const (
	RestartAlways    Policy = "always"
	RestartOnFailure Policy = "on-failure"
	RestartNever     Policy = "never"
)

// ShouldRestart reports whether a worker that exited with code is restarted.
func (p Policy) ShouldRestart(code int) bool {
	switch p {
	case RestartAlways:
		return true
	case RestartOnFailure:
		return code != 0
	default:
		return false
	}
}
