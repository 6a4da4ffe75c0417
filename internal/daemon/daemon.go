package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"mediahub/internal/config"
	"mediahub/internal/hub"
	"mediahub/internal/ipc"
	"mediahub/internal/logging"
	"mediahub/internal/metrics"
	"mediahub/internal/relay"
	"mediahub/internal/router"
	"mediahub/internal/state"
	"mediahub/internal/supervisor"
	"mediahub/internal/wire"
)

// ErrAlreadyRunning is returned when another hub holds the socket lock.
var ErrAlreadyRunning = errors.New("another mediahub hub is already running")

// Daemon owns the hub components and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	hub        *hub.Hub
	supervisor *supervisor.Supervisor
	relay      *relay.Server

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	ipc       *ipc.Server
	cancel    context.CancelFunc
	startedAt time.Time
	running   atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	PID        int
	StartedAt  time.Time
	SocketPath string
	LockPath   string
	RelayAddr  string
	Workers    []wire.WorkerStatus
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	d.supervisor = supervisor.NewFromConfig(cfg, logger)
	rt := router.New(router.Options{
		DIAL:         relay.NewDIALClient(cfg.RelayTimeout(), logger),
		Roster:       d.supervisor,
		Sessions:     d,
		AppID:        cfg.Relay.AppID,
		RelayTimeout: cfg.RelayTimeout(),
		Logger:       logger,
	})
	d.hub = hub.New(hub.Options{
		State:            state.New(),
		Router:           rt,
		Watchdog:         d.supervisor,
		Sessions:         d,
		WatchdogInterval: cfg.WatchdogInterval(),
		DispatchTimeout:  cfg.DispatchTimeout(),
		Logger:           logger,
	})

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler()
	}
	if strings.TrimSpace(cfg.Relay.Bind) != "" {
		d.relay = relay.NewServer(relay.ServerOptions{
			Bind:     cfg.Relay.Bind,
			Registry: d.hub,
			Metrics:  metricsHandler,
			Logger:   logger,
		})
	}
	return d, nil
}

// Start acquires the lock, binds the hub socket, and launches the loop, the
// relay server and the supervised workers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already started")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	srv, err := ipc.NewServer(ctx, d.cfg.Paths.SocketPath, d.hub, ipc.Options{
		MaxPendingBytes: d.cfg.Hub.MaxPendingBytes,
		WriteTimeout:    d.cfg.WriteTimeout(),
		Logger:          d.logger,
	})
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start hub socket: %w", err)
	}

	// Workers start before the loop so Tick never races StartAll. The loop
	// outlives ctx so sessions still draining during shutdown get replies;
	// Stop ends it.
	d.supervisor.StartAll()
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		_ = d.hub.Run(loopCtx)
	}()
	srv.Serve()

	d.mu.Lock()
	d.ipc = srv
	d.cancel = cancel
	d.startedAt = time.Now()
	d.mu.Unlock()

	if d.relay != nil {
		if err := d.relay.Start(ctx); err != nil {
			logging.WarnWithContext(d.logger, "relay server unavailable", "relay_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check relay.bind for a port conflict"),
				logging.String(logging.FieldImpact, "relays cannot attach and /metrics is not served"))
		}
	}

	d.running.Store(true)
	d.logger.Info("mediahub hub started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("socket", d.cfg.Paths.SocketPath),
		logging.String("lock", d.lockPath),
		logging.Int("workers", len(d.supervisor.Processes())))
	return nil
}

// Stop closes the socket and the relay server, ends the loop, stops the
// workers and releases the lock. ctx bounds the relay and worker shutdown.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	srv := d.ipc
	cancel := d.cancel
	d.ipc = nil
	d.cancel = nil
	d.mu.Unlock()

	if srv != nil {
		srv.Close()
	}
	if d.relay != nil {
		if err := d.relay.Close(ctx); err != nil {
			d.logger.Debug("relay shutdown incomplete", logging.Error(err))
		}
	}
	if cancel != nil {
		cancel()
		<-d.hub.Done()
	}
	d.supervisor.StopAll(ctx)
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start is refused"))
	}
	d.running.Store(false)
	d.logger.Info("mediahub hub stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// SessionCount reports connected hub peers.
func (d *Daemon) SessionCount() int {
	d.mu.Lock()
	srv := d.ipc
	d.mu.Unlock()
	if srv == nil {
		return 0
	}
	return srv.SessionCount()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()
	st := Status{
		Running:    d.running.Load(),
		PID:        os.Getpid(),
		StartedAt:  startedAt,
		SocketPath: d.cfg.Paths.SocketPath,
		LockPath:   d.lockPath,
		Workers:    d.supervisor.Snapshot(),
	}
	if d.relay != nil {
		st.RelayAddr = d.relay.Addr()
	}
	return st
}
