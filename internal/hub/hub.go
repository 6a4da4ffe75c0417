package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediahub/internal/logging"
	"mediahub/internal/metrics"
	"mediahub/internal/relay"
	"mediahub/internal/router"
	"mediahub/internal/state"
	"mediahub/internal/supervisor"
	"mediahub/internal/wire"
)

// ErrStopped is returned by Dispatch once the loop has exited.
var ErrStopped = errors.New("hub: stopped")

// Watchdog is ticked by the loop to keep supervised workers alive.
type Watchdog interface {
	Tick()
	Snapshot() []wire.WorkerStatus
}

// Options configures a Hub.
type Options struct {
	State            *state.State
	Router           *router.Router
	Watchdog         Watchdog
	Sessions         router.SessionCounter
	WatchdogInterval time.Duration
	DispatchTimeout  time.Duration
	Logger           *slog.Logger
}

// Hub is the owning loop.
type Hub struct {
	st              *state.State
	router          *router.Router
	watchdog        Watchdog
	sessions        router.SessionCounter
	interval        time.Duration
	dispatchTimeout time.Duration
	logger          *slog.Logger

	requests chan request
	relays   chan relayEvent
	done     chan struct{}
}

type request struct {
	ctx   context.Context
	msg   *wire.Message
	reply chan *wire.Message
}

type relayEvent struct {
	sess   *relay.Session
	attach bool
}

// New constructs a Hub. Call Run to start the loop.
func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	st := opts.State
	if st == nil {
		st = state.New()
	}
	rt := opts.Router
	if rt == nil {
		rt = router.New(router.Options{Logger: logger})
	}
	interval := opts.WatchdogInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	dispatchTimeout := opts.DispatchTimeout
	if dispatchTimeout <= 0 {
		dispatchTimeout = 15 * time.Second
	}
	return &Hub{
		st:              st,
		router:          rt,
		watchdog:        opts.Watchdog,
		sessions:        opts.Sessions,
		interval:        interval,
		dispatchTimeout: dispatchTimeout,
		logger:          logging.NewComponentLogger(logger, "hub"),
		requests:        make(chan request),
		relays:          make(chan relayEvent),
		done:            make(chan struct{}),
	}
}

// Run processes requests until ctx is canceled. It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("hub loop started",
		logging.String(logging.FieldEventType, "hub_started"),
		logging.Duration("watchdog_interval", h.interval))
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub loop stopped", logging.String(logging.FieldEventType, "hub_stopped"))
			return nil
		case req := <-h.requests:
			h.handle(req)
		case ev := <-h.relays:
			h.applyRelay(ev)
		case <-ticker.C:
			h.tick()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Dispatch submits msg to the loop and waits for its reply, bounded by the
// dispatch timeout.
func (h *Hub) Dispatch(ctx context.Context, msg *wire.Message) (*wire.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, h.dispatchTimeout)
	defer cancel()

	req := request{ctx: ctx, msg: msg, reply: make(chan *wire.Message, 1)}
	select {
	case h.requests <- req:
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("dispatch: %w", ctx.Err())
	}
	select {
	case reply := <-req.reply:
		return reply, nil
	case <-h.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, fmt.Errorf("dispatch: %w", ctx.Err())
	}
}

func (h *Hub) handle(req request) {
	start := time.Now()
	reply := h.router.Dispatch(req.ctx, h.st, req.msg)
	source := ""
	if req.msg != nil {
		source = req.msg.Source
	}
	metrics.ObserveDispatch(source, reply.Failed(), time.Since(start).Seconds())
	req.reply <- reply
}

// Attach registers a relay session with the loop.
func (h *Hub) Attach(sess *relay.Session) {
	select {
	case h.relays <- relayEvent{sess: sess, attach: true}:
	case <-h.done:
		sess.Close()
	}
}

// Detach removes a relay session if it is still the registered one.
func (h *Hub) Detach(sess *relay.Session) {
	select {
	case h.relays <- relayEvent{sess: sess}:
	case <-h.done:
	}
}

func (h *Hub) applyRelay(ev relayEvent) {
	if !ev.attach {
		if h.st.DetachRelay(ev.sess) {
			h.logger.Debug("relay session unregistered",
				logging.String(logging.FieldDeviceAddr, ev.sess.Addr()),
				logging.String(logging.FieldSessionID, ev.sess.ID()))
		}
		return
	}
	prev := h.st.AttachRelay(ev.sess)
	if old, ok := prev.(*relay.Session); ok && old != ev.sess {
		h.logger.Info("relay session replaced",
			logging.String(logging.FieldEventType, "relay_replaced"),
			logging.String(logging.FieldDeviceAddr, ev.sess.Addr()),
			logging.String("previous_session", old.ID()))
		old.Close()
	}
}

func (h *Hub) tick() {
	var workers []wire.WorkerStatus
	if h.watchdog != nil {
		h.watchdog.Tick()
		workers = h.watchdog.Snapshot()
		metrics.SetWorkers(workers)
	}
	sum := h.st.Summary()
	if h.sessions != nil {
		sum.Sessions = h.sessions.SessionCount()
	}
	metrics.SetStateSummary(sum)

	running := 0
	for _, w := range workers {
		if w.State == string(supervisor.PhaseRunning) {
			running++
		}
	}
	h.logger.Info("hub state",
		logging.String(logging.FieldEventType, "hub_summary"),
		logging.Int("devices", sum.Devices),
		logging.Int("movies", sum.Movies),
		logging.Int("tv", sum.TV),
		logging.Int("pending_jobs", sum.PendingJobs),
		logging.Int("in_flight_jobs", sum.InFlightJobs),
		logging.Int("relay_sessions", sum.RelaySessions),
		logging.Int("sessions", sum.Sessions),
		logging.Int("workers", len(workers)),
		logging.Int("workers_running", running))
}
