package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediahub/internal/config"
	"mediahub/internal/logging"
	"mediahub/internal/wire"
)

// Options configures restart behaviour.
type Options struct {
	Policy         Policy
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	StopTimeout    time.Duration
	Logger         *slog.Logger
}

// Supervisor owns the roster. Tick must only be called from one goroutine.
type Supervisor struct {
	procs   []*Process
	byName  map[string]*Process
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	started bool
}

// New builds a supervisor over workers. Disabled entries are skipped.
func New(workers []config.Worker, opts Options) *Supervisor {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = RestartOnFailure
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = time.Second
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	s := &Supervisor{
		byName: make(map[string]*Process),
		opts:   opts,
		logger: logger.With(logging.String(logging.FieldComponent, "supervisor")),
		now:    time.Now,
	}
	for _, w := range workers {
		if w.Disabled {
			continue
		}
		p := NewProcess(w.Name, w.Command, logger)
		p.backoff = opts.BackoffInitial
		s.procs = append(s.procs, p)
		s.byName[w.Name] = p
	}
	return s
}

// NewFromConfig builds a supervisor from the loaded configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Supervisor {
	return New(cfg.Workers, Options{
		Policy:         Policy(cfg.Supervisor.RestartPolicy),
		BackoffInitial: cfg.BackoffInitial(),
		BackoffMax:     cfg.BackoffMax(),
		StopTimeout:    cfg.StopTimeout(),
		Logger:         logger,
	})
}

// Processes returns the roster in configuration order.
func (s *Supervisor) Processes() []*Process {
	return append([]*Process(nil), s.procs...)
}

// Lookup returns the roster entry called name.
func (s *Supervisor) Lookup(name string) (*Process, error) {
	p, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("supervisor: unknown worker %q", name)
	}
	return p, nil
}

// Start launches the named worker.
func (s *Supervisor) Start(name string) error {
	p, err := s.Lookup(name)
	if err != nil {
		return err
	}
	return p.Start()
}

// Terminate requests a graceful stop of the named worker.
func (s *Supervisor) Terminate(name string) error {
	p, err := s.Lookup(name)
	if err != nil {
		return err
	}
	return p.Terminate()
}

// Kill forces the named worker to stop.
func (s *Supervisor) Kill(name string) error {
	p, err := s.Lookup(name)
	if err != nil {
		return err
	}
	return p.Kill()
}

// IsRunning polls the named worker without blocking.
func (s *Supervisor) IsRunning(name string) bool {
	p, err := s.Lookup(name)
	if err != nil {
		return false
	}
	return p.IsRunning()
}

// StartAll launches every worker that is not running.
func (s *Supervisor) StartAll() {
	s.started = true
	for _, p := range s.procs {
		if err := p.Start(); err != nil {
			s.startFailed(p, err)
		}
	}
}

// Tick is the watchdog pass. Workers that never started are started; exited
// workers are restarted when the policy allows and their backoff has elapsed.
// Workers stopped through Terminate or Kill are left alone.
func (s *Supervisor) Tick() {
	now := s.now()
	for _, p := range s.procs {
		life := p.Lifecycle()
		switch life.Phase {
		case PhaseRunning:
			if p.backoff > s.opts.BackoffInitial && now.Sub(life.StartedAt) >= s.opts.BackoffMax {
				p.backoff = s.opts.BackoffInitial
			}
			continue
		case PhaseNotStarted:
			if !s.started || (!p.nextStart.IsZero() && now.Before(p.nextStart)) {
				continue
			}
		case PhaseExited:
			if p.isHeld() {
				continue
			}
			if !p.handled {
				p.handled = true
				if !s.opts.Policy.ShouldRestart(life.ExitCode) {
					logging.WarnWithContext(s.logger, "worker exited and will not be restarted", "worker_not_restarted",
						logging.String(logging.FieldWorker, p.name),
						logging.Int("exit_code", life.ExitCode),
						logging.String("policy", string(s.opts.Policy)),
						logging.String(logging.FieldErrorHint, "run the worker by hand to inspect its output"),
					)
					p.nextStart = time.Time{}
					continue
				}
				p.nextStart = life.ExitedAt.Add(p.backoff)
				s.logger.Info("worker restart scheduled",
					logging.String(logging.FieldEventType, "worker_restart_scheduled"),
					logging.String(logging.FieldWorker, p.name),
					logging.Int("exit_code", life.ExitCode),
					logging.Duration("backoff", p.backoff),
				)
				p.backoff = min(p.backoff*2, s.opts.BackoffMax)
			}
			if p.nextStart.IsZero() || now.Before(p.nextStart) {
				continue
			}
		}
		if err := p.Start(); err != nil {
			s.startFailed(p, err)
		}
	}
}

func (s *Supervisor) startFailed(p *Process, err error) {
	p.nextStart = s.now().Add(p.backoff)
	p.backoff = min(p.backoff*2, s.opts.BackoffMax)
	s.logger.Error("worker start failed",
		logging.String(logging.FieldEventType, "worker_start_failed"),
		logging.String(logging.FieldWorker, p.name),
		logging.String(logging.FieldErrorHint, "check the worker command in the [[workers]] config"),
		logging.Error(err),
	)
}

// StopAll terminates every running worker and kills those still alive after
// the stop timeout or when ctx ends.
func (s *Supervisor) StopAll(ctx context.Context) {
	var waiting []*Process
	for _, p := range s.procs {
		if err := p.Terminate(); err != nil {
			if !errors.Is(err, ErrNotRunning) {
				s.logger.Warn("terminate worker failed",
					logging.String(logging.FieldWorker, p.name),
					logging.Error(err),
				)
			}
			continue
		}
		waiting = append(waiting, p)
	}
	if len(waiting) == 0 {
		return
	}

	stopCtx, cancel := context.WithTimeout(ctx, s.opts.StopTimeout)
	defer cancel()
	for _, p := range waiting {
		done := p.Done()
		select {
		case <-done:
			continue
		case <-stopCtx.Done():
		}
		if err := p.Kill(); err != nil && !errors.Is(err, ErrNotRunning) {
			s.logger.Warn("kill worker failed",
				logging.String(logging.FieldWorker, p.name),
				logging.Error(err),
			)
		}
		select {
		case <-done:
		case <-time.After(s.opts.StopTimeout):
			s.logger.Error("worker did not exit after kill",
				logging.String(logging.FieldWorker, p.name),
			)
		}
	}
}

// Snapshot reports every roster entry.
func (s *Supervisor) Snapshot() []wire.WorkerStatus {
	out := make([]wire.WorkerStatus, 0, len(s.procs))
	for _, p := range s.procs {
		life := p.Lifecycle()
		status := wire.WorkerStatus{
			Name:     p.name,
			State:    string(life.Phase),
			Restarts: life.Restarts,
		}
		switch life.Phase {
		case PhaseRunning:
			status.PID = life.PID
		case PhaseExited:
			status.ExitCode = life.ExitCode
		}
		out = append(out, status)
	}
	return out
}
