package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"mediahub/internal/config"
)

func newTestSupervisor(policy Policy, workers ...config.Worker) *Supervisor {
	return New(workers, Options{
		Policy:         policy,
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     40 * time.Millisecond,
		StopTimeout:    500 * time.Millisecond,
	})
}

func shWorker(name, script string) config.Worker {
	return config.Worker{Name: name, Command: []string{"sh", "-c", script}}
}

func waitExit(t *testing.T, p *Process) Lifecycle {
	t.Helper()
	done := p.Done()
	if done == nil {
		t.Fatalf("worker %s never started", p.Name())
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for worker %s to exit", p.Name())
	}
	return p.Lifecycle()
}

func TestLifecycleNotStartedRunningExited(t *testing.T) {
	s := newTestSupervisor(RestartNever, shWorker("w", "sleep 0.2; exit 3"))
	p, err := s.Lookup("w")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if life := p.Lifecycle(); life.Phase != PhaseNotStarted {
		t.Fatalf("expected not started, got %s", life.Phase)
	}
	if s.IsRunning("w") {
		t.Fatal("expected not running before start")
	}

	if err := s.Start("w"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.IsRunning("w") {
		t.Fatal("expected running after start")
	}
	pid := p.Lifecycle().PID
	if err := s.Start("w"); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if p.Lifecycle().PID != pid {
		t.Fatal("expected Start on a running worker to be a no-op")
	}

	life := waitExit(t, p)
	if life.Phase != PhaseExited || life.ExitCode != 3 {
		t.Fatalf("expected exited(3), got %+v", life)
	}
	if s.IsRunning("w") {
		t.Fatal("expected not running after exit")
	}
}

func TestExitDetectedWhileChildHoldsOutput(t *testing.T) {
	prev := outputDrainDelay
	outputDrainDelay = 100 * time.Millisecond
	t.Cleanup(func() { outputDrainDelay = prev })

	s := newTestSupervisor(RestartNever, shWorker("forker", "sleep 30 & echo started; exit 0"))
	if err := s.Start("forker"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	p, err := s.Lookup("forker")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	pid := p.Lifecycle().PID
	t.Cleanup(func() { _ = unix.Kill(-pid, unix.SIGKILL) })

	life := waitExit(t, p)
	if life.Phase != PhaseExited || life.ExitCode != 0 {
		t.Fatalf("expected exited(0), got %+v", life)
	}
	if s.IsRunning("forker") {
		t.Fatal("expected worker to be reported stopped once its own process exits")
	}
}

func TestTerminateAndKill(t *testing.T) {
	s := newTestSupervisor(RestartAlways,
		shWorker("graceful", "sleep 30"),
		shWorker("stubborn", "trap '' TERM; sleep 30"),
	)
	s.StartAll()

	graceful, _ := s.Lookup("graceful")
	if err := s.Terminate("graceful"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if life := waitExit(t, graceful); life.ExitCode != 128+15 {
		t.Fatalf("expected SIGTERM exit code, got %d", life.ExitCode)
	}

	stubborn, _ := s.Lookup("stubborn")
	if err := s.Kill("stubborn"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if life := waitExit(t, stubborn); life.ExitCode != 128+9 {
		t.Fatalf("expected SIGKILL exit code, got %d", life.ExitCode)
	}

	if err := s.Terminate("graceful"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	s.Tick()
	if s.IsRunning("graceful") || s.IsRunning("stubborn") {
		t.Fatal("operator-stopped workers must not be restarted by the watchdog")
	}
}

func TestTickRestartsFailedWorkerAfterBackoff(t *testing.T) {
	s := newTestSupervisor(RestartOnFailure, shWorker("crash", "exit 2"))
	s.StartAll()
	p, _ := s.Lookup("crash")
	life := waitExit(t, p)

	s.now = func() time.Time { return life.ExitedAt }
	s.Tick()
	if p.IsRunning() {
		t.Fatal("expected restart to wait for backoff")
	}

	s.now = func() time.Time { return life.ExitedAt.Add(time.Second) }
	s.Tick()
	life = p.Lifecycle()
	if life.Restarts != 1 {
		t.Fatalf("expected restart count 1, got %d", life.Restarts)
	}
	if p.backoff != 20*time.Millisecond {
		t.Fatalf("expected doubled backoff, got %s", p.backoff)
	}
	waitExit(t, p)
}

func TestTickHonoursPolicy(t *testing.T) {
	cases := []struct {
		name    string
		policy  Policy
		script  string
		restart bool
	}{
		{"never after failure", RestartNever, "exit 1", false},
		{"on-failure after success", RestartOnFailure, "exit 0", false},
		{"on-failure after failure", RestartOnFailure, "exit 1", true},
		{"always after success", RestartAlways, "exit 0", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestSupervisor(tc.policy, shWorker("w", tc.script))
			s.StartAll()
			p, _ := s.Lookup("w")
			waitExit(t, p)

			s.now = func() time.Time { return time.Now().Add(time.Hour) }
			s.Tick()
			restarted := p.Lifecycle().Restarts == 1
			if restarted != tc.restart {
				t.Fatalf("restarted = %v, want %v", restarted, tc.restart)
			}
			if restarted {
				waitExit(t, p)
			}
		})
	}
}

func TestStartFailureIsRecordedAndRetried(t *testing.T) {
	s := newTestSupervisor(RestartAlways, config.Worker{Name: "missing", Command: []string{"/nonexistent/mediahub-worker"}})
	s.StartAll()
	p, _ := s.Lookup("missing")
	life := p.Lifecycle()
	if life.Phase != PhaseNotStarted || life.LastError == nil {
		t.Fatalf("expected start error recorded, got %+v", life)
	}
	if p.nextStart.IsZero() {
		t.Fatal("expected retry scheduled")
	}
	s.Tick()
	if p.Lifecycle().Phase != PhaseNotStarted {
		t.Fatal("expected worker to remain not started")
	}
}

func TestDisabledWorkersAreSkipped(t *testing.T) {
	s := New([]config.Worker{
		{Name: "a", Command: []string{"true"}},
		{Name: "b", Command: []string{"true"}, Disabled: true},
	}, Options{})
	if len(s.Processes()) != 1 {
		t.Fatalf("expected one worker, got %d", len(s.Processes()))
	}
	if _, err := s.Lookup("b"); err == nil {
		t.Fatal("expected disabled worker to be absent")
	}
}

func TestStopAllKillsAfterTimeout(t *testing.T) {
	s := newTestSupervisor(RestartAlways,
		shWorker("polite", "sleep 30"),
		shWorker("rude", "trap '' TERM; while :; do sleep 0.05; done"),
	)
	s.opts.StopTimeout = 300 * time.Millisecond
	s.StartAll()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	s.StopAll(context.Background())
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("StopAll took too long: %s", elapsed)
	}
	for _, p := range s.Processes() {
		if p.IsRunning() {
			t.Fatalf("worker %s still running", p.Name())
		}
	}
	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].State != string(PhaseExited) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestPolicyShouldRestart(t *testing.T) {
	if !RestartAlways.ShouldRestart(0) || !RestartOnFailure.ShouldRestart(1) {
		t.Fatal("expected restart")
	}
	if RestartOnFailure.ShouldRestart(0) || RestartNever.ShouldRestart(1) {
		t.Fatal("expected no restart")
	}
}
