package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"mediahub/internal/logging"
)

// ErrNotRunning is returned when signalling a worker that has no live process.
var ErrNotRunning = errors.New("supervisor: worker not running")

// outputDrainDelay bounds how long output is read after a worker exits. A
// background child holding the worker's stdout must not keep it running.
var outputDrainDelay = 2 * time.Second

// Process is one roster entry.
type Process struct {
	name    string
	command []string
	logger  *slog.Logger

	mu        sync.Mutex
	phase     Phase
	cmd       *exec.Cmd
	pid       int
	exitCode  int
	startedAt time.Time
	exitedAt  time.Time
	restarts  int
	lastErr   error
	held      bool
	done      chan struct{}

	// Watchdog bookkeeping, touched only by Supervisor.Tick.
	backoff   time.Duration
	nextStart time.Time
	handled   bool
}

// NewProcess describes a worker without starting it.
func NewProcess(name string, command []string, logger *slog.Logger) *Process {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Process{
		name:    name,
		command: append([]string(nil), command...),
		logger:  logger.With(logging.String(logging.FieldWorker, name)),
		phase:   PhaseNotStarted,
	}
}

// Name returns the roster name.
func (p *Process) Name() string {
	return p.name
}

// Start launches the worker unless it is already running. It does not wait
// for the worker to do anything.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == PhaseRunning {
		return nil
	}
	if len(p.command) == 0 {
		return fmt.Errorf("worker %s: empty command", p.name)
	}

	cmd := exec.Command(p.command[0], p.command[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = outputDrainDelay
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		p.lastErr = err
		return fmt.Errorf("worker %s: start: %w", p.name, err)
	}

	if p.phase == PhaseExited {
		p.restarts++
	}
	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.phase = PhaseRunning
	p.exitCode = 0
	p.startedAt = time.Now()
	p.exitedAt = time.Time{}
	p.lastErr = nil
	p.held = false
	p.handled = false
	p.done = make(chan struct{})

	p.logger.Info("worker started",
		logging.String(logging.FieldEventType, "worker_started"),
		logging.Int("pid", p.pid),
		logging.Int("restarts", p.restarts),
	)

	var streams sync.WaitGroup
	streams.Add(2)
	go p.streamOutput(stdout, "stdout", &streams)
	go p.streamOutput(stderr, "stderr", &streams)
	go p.wait(cmd, p.done, &streams, stdoutW, stderrW)
	return nil
}

func (p *Process) wait(cmd *exec.Cmd, done chan struct{}, streams *sync.WaitGroup, outputs ...io.Closer) {
	err := cmd.Wait()
	for _, w := range outputs {
		_ = w.Close()
	}
	streams.Wait()
	if errors.Is(err, exec.ErrWaitDelay) {
		p.logger.Debug("worker output still held open after exit; stopped reading",
			logging.String(logging.FieldEventType, "worker_output_abandoned"))
		err = nil
	}
	code := exitCodeFromError(err)

	p.mu.Lock()
	if p.cmd == cmd {
		p.phase = PhaseExited
		p.exitCode = code
		p.exitedAt = time.Now()
		p.cmd = nil
	}
	p.mu.Unlock()
	close(done)

	level := slog.LevelInfo
	if code != 0 {
		level = slog.LevelWarn
	}
	p.logger.Log(context.Background(), level, "worker exited",
		logging.String(logging.FieldEventType, "worker_exited"),
		logging.Int("exit_code", code),
	)
}

func (p *Process) streamOutput(r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.logger.Debug(scanner.Text(), logging.String("stream", stream))
	}
	// Keep the pipe flowing after an over-long line so the worker never blocks.
	_, _ = io.Copy(io.Discard, r)
}

// Terminate asks the worker's process group to stop with SIGTERM.
func (p *Process) Terminate() error {
	return p.signal(unix.SIGTERM)
}

// Kill forces the worker's process group to stop with SIGKILL.
func (p *Process) Kill() error {
	return p.signal(unix.SIGKILL)
}

func (p *Process) signal(sig unix.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase != PhaseRunning {
		return ErrNotRunning
	}
	p.held = true
	if err := unix.Kill(-p.pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("worker %s: signal %s: %w", p.name, sig, err)
	}
	return nil
}

// IsRunning reports liveness without blocking.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase == PhaseRunning
}

// Done returns a channel closed when the current run exits. It is nil before
// the first start.
func (p *Process) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Lifecycle returns the current lifecycle snapshot.
func (p *Process) Lifecycle() Lifecycle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Lifecycle{
		Phase:     p.phase,
		PID:       p.pid,
		ExitCode:  p.exitCode,
		StartedAt: p.startedAt,
		ExitedAt:  p.exitedAt,
		Restarts:  p.restarts,
		LastError: p.lastErr,
	}
}

func (p *Process) isHeld() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// exitCodeFromError maps a Wait error to an exit code. Signalled processes
// report 128 plus the signal number.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
