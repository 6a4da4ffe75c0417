// Package router turns one inbound hub message into state mutations and a
// reply. Every failure is expressed as reply content; Dispatch never returns
// an error and never panics past its boundary.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediahub/internal/logging"
	"mediahub/internal/queue"
	"mediahub/internal/state"
	"mediahub/internal/wire"
)

// Reply texts shared with clients.
const (
	ErrTextNoSource        = "No Packet Source Given"
	ErrTextUnknownSource   = "Unknown Packet Source"
	ErrTextNoCommand       = "CLI Error - No Command Given"
	ErrTextBadCommand      = "CLI Error - Bad Command"
	ErrTextBadDeviceCmd    = "CLI Error - Bad CMD"
	ErrTextUnknownDevice   = "CLI Error - Unknown Device"
	ErrTextMissingAddr     = "CLI Error - No Address Given"
	ErrTextMissingFile     = "CLI Error - No File Given"
	ErrTextConverterBadReq = "Converter Error - Bad Request"
	ErrTextNoRelaySession  = "No WS Connection for that address"
	ErrTextInternal        = "Internal Error"
)

// DIAL launches and stops the receiver app on a cast device.
type DIAL interface {
	Launch(ctx context.Context, device wire.Device, appID string) (string, error)
	Exit(ctx context.Context, device wire.Device, appID string) (string, error)
}

// Roster reports the supervised worker processes.
type Roster interface {
	Snapshot() []wire.WorkerStatus
}

// SessionCounter reports connected hub peers.
type SessionCounter interface {
	SessionCount() int
}

// Options configures a Router.
type Options struct {
	DIAL         DIAL
	Roster       Roster
	Sessions     SessionCounter
	AppID        string
	RelayTimeout time.Duration
	Logger       *slog.Logger
}

// Router dispatches messages against a State.
type Router struct {
	dial     DIAL
	roster   Roster
	sessions SessionCounter
	appID    string
	timeout  time.Duration
	logger   *slog.Logger
}

// New constructs a Router.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := opts.RelayTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Router{
		dial:     opts.DIAL,
		roster:   opts.Roster,
		sessions: opts.Sessions,
		appID:    opts.AppID,
		timeout:  timeout,
		logger:   logger.With(logging.String(logging.FieldComponent, "router")),
	}
}

// Dispatch applies msg to st and returns the reply.
func (r *Router) Dispatch(ctx context.Context, st *state.State, msg *wire.Message) (reply *wire.Message) {
	if msg == nil {
		return sourceFailure(ErrTextNoSource)
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("dispatch panic recovered",
				logging.String(logging.FieldEventType, "dispatch_panic"),
				logging.String(logging.FieldPeerSource, msg.Source),
				logging.Any("panic", rec),
			)
			reply = failure(ErrTextInternal)
		}
	}()

	switch msg.Source {
	case wire.SourceDiscoverer:
		return r.handleDiscoverer(st, msg)
	case wire.SourceScanner:
		return r.handleScanner(st, msg)
	case wire.SourceConverter:
		return r.handleConverter(st, msg)
	case wire.SourceCLI, wire.SourceWebUI:
		return r.handleClient(ctx, st, msg)
	case "":
		return sourceFailure(ErrTextNoSource)
	default:
		return sourceFailure(fmt.Sprintf("%s: %q", ErrTextUnknownSource, msg.Source))
	}
}

func (r *Router) handleDiscoverer(st *state.State, msg *wire.Message) *wire.Message {
	skipped := 0
	for _, d := range msg.Devices {
		if !st.UpsertDevice(d) {
			skipped++
		}
	}
	if skipped > 0 {
		r.logger.Debug("discoverer reported devices without address",
			logging.Int("skipped", skipped),
		)
	}
	return ok()
}

func (r *Router) handleScanner(st *state.State, msg *wire.Message) *wire.Message {
	if msg.Movies != nil || msg.TV != nil {
		st.ReplaceCatalog(msg.Movies, msg.TV)
	}
	added := 0
	for _, file := range msg.Transcode {
		if _, err := st.Jobs().Enqueue(file); err == nil {
			added++
		}
	}
	if added > 0 {
		r.logger.Info("transcode jobs queued",
			logging.String(logging.FieldEventType, "jobs_enqueued"),
			logging.Int("count", added),
		)
	}
	return ok()
}

func (r *Router) handleConverter(st *state.State, msg *wire.Message) *wire.Message {
	jobs := st.Jobs()
	switch {
	case msg.Request == wire.RequestJob:
		job, found := jobs.Claim()
		if !found {
			return &wire.Message{Source: wire.SourceCommandCenter, Message: wire.MessageNoJob, NoJob: true}
		}
		r.logger.Info("job claimed",
			logging.String(logging.FieldEventType, "job_claimed"),
			logging.String(logging.FieldInputFile, job.InputFile),
		)
		reply := ok()
		wj := job.Wire()
		reply.Job = &wj
		return reply
	case msg.Complete != "":
		removed := jobs.Complete(msg.Complete)
		r.logger.Info("job completed",
			logging.String(logging.FieldEventType, "job_completed"),
			logging.String(logging.FieldInputFile, msg.Complete),
			logging.Bool("removed", removed),
		)
		return ok()
	case len(msg.Progress) > 0:
		jobs.RecordProgress(msg.File, msg.Progress)
		return ok()
	case msg.Status != "":
		jobs.RecordStatus(msg.File, msg.Status)
		return ok()
	default:
		return failure(ErrTextConverterBadReq)
	}
}

func (r *Router) handleClient(ctx context.Context, st *state.State, msg *wire.Message) *wire.Message {
	cmd := strings.ToLower(strings.TrimSpace(msg.Cmd))
	if msg.Addr != "" {
		return r.handleDeviceCommand(ctx, st, cmd, msg)
	}
	switch cmd {
	case "":
		return failure(ErrTextNoCommand)
	case wire.CmdMovies:
		reply := ok()
		reply.Movies = st.Movies()
		return reply
	case wire.CmdTV:
		reply := ok()
		reply.TV = st.TV()
		return reply
	case wire.CmdDevices:
		reply := ok()
		reply.Devices = st.Devices()
		return reply
	case wire.CmdQueue:
		reply := ok()
		for _, job := range st.Jobs().Pending() {
			reply.Jobs = append(reply.Jobs, job.Wire())
		}
		for _, job := range st.Jobs().InFlight() {
			reply.InFlight = append(reply.InFlight, job.Wire())
		}
		return reply
	case wire.CmdEnqueue:
		return r.enqueue(st, msg.File)
	case wire.CmdWorkers:
		reply := ok()
		if r.roster != nil {
			reply.Workers = r.roster.Snapshot()
		}
		return reply
	case wire.CmdStatus:
		reply := ok()
		sum := st.Summary()
		if r.sessions != nil {
			sum.Sessions = r.sessions.SessionCount()
		}
		reply.Summary = &sum
		return reply
	case wire.CmdLaunch, wire.CmdExit, wire.CmdControl:
		return failure(ErrTextMissingAddr)
	default:
		return failure(ErrTextBadCommand)
	}
}

func (r *Router) enqueue(st *state.State, file string) *wire.Message {
	job, err := st.Jobs().Enqueue(file)
	switch {
	case errors.Is(err, queue.ErrEmptyInput):
		return failure(ErrTextMissingFile)
	case err != nil:
		return failure(err.Error())
	}
	r.logger.Info("transcode job queued",
		logging.String(logging.FieldEventType, "job_enqueued"),
		logging.String(logging.FieldInputFile, job.InputFile),
	)
	reply := ok()
	wj := job.Wire()
	reply.Job = &wj
	return reply
}

func (r *Router) handleDeviceCommand(ctx context.Context, st *state.State, cmd string, msg *wire.Message) *wire.Message {
	switch cmd {
	case wire.CmdLaunch, wire.CmdExit, wire.CmdControl:
	case "":
		return failure(ErrTextNoCommand)
	default:
		return failure(ErrTextBadDeviceCmd)
	}

	device, known := st.Device(msg.Addr)
	if !known {
		return failure(fmt.Sprintf("%s: %s", ErrTextUnknownDevice, msg.Addr))
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := r.logger.With(
		logging.String(logging.FieldDeviceAddr, msg.Addr),
		logging.String("cmd", cmd),
	)

	if cmd == wire.CmdControl {
		sess, attached := st.RelaySession(msg.Addr)
		if !attached {
			return failure(ErrTextNoRelaySession)
		}
		raw, err := sess.Communicate(ctx, msg)
		if err != nil {
			logging.WarnWithContext(logger, "relay communicate failed", "relay_communicate_failed",
				logging.String(logging.FieldErrorHint, "check that the relay for this device is still attached"),
				logging.Error(err),
			)
			return failure(err.Error())
		}
		reply := ok()
		reply.Reply = raw
		return reply
	}

	if r.dial == nil {
		return failure("relay unavailable")
	}
	var (
		status string
		err    error
	)
	if cmd == wire.CmdLaunch {
		status, err = r.dial.Launch(ctx, device, r.appID)
	} else {
		status, err = r.dial.Exit(ctx, device, r.appID)
	}
	if err != nil {
		logging.WarnWithContext(logger, "device command failed", "dial_failed",
			logging.String(logging.FieldErrorHint, "verify the device is reachable on the local network"),
			logging.Error(err),
		)
		return failure(err.Error())
	}
	logger.Info("device command relayed",
		logging.String(logging.FieldEventType, "dial_"+cmd),
		logging.String("status", status),
	)
	reply := ok()
	reply.Status = status
	return reply
}

func ok() *wire.Message {
	return &wire.Message{Source: wire.SourceCommandCenter, Message: wire.MessageOK}
}

func failure(text string) *wire.Message {
	return &wire.Message{Source: wire.SourceCommandCenter, Message: text, Error: text}
}

func sourceFailure(text string) *wire.Message {
	return &wire.Message{Source: wire.SourceCommandCenter, Message: "Error", Error: text}
}
