package ipc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediahub/internal/logging"
	"mediahub/internal/metrics"
	"mediahub/internal/wire"
)

const readChunk = 32 << 10

// Reasons recorded when a session ends.
const (
	closeEOF         = "eof"
	closeReadError   = "read_error"
	closeMalformed   = "malformed"
	closeOverflow    = "overflow"
	closeWriteFailed = "write_failed"
	closeShutdown    = "shutdown"
)

// unavailableReply answers a request the hub could not process.
var unavailableReply = &wire.Message{
	Source:  wire.SourceCommandCenter,
	Message: "Error",
	Error:   "Hub Unavailable",
}

type session struct {
	id     string
	conn   net.Conn
	srv    *Server
	logger *slog.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	outbound   []byte
	closing    bool
	aborted    bool
	dead       bool
	writerDone chan struct{}
}

func newSession(srv *Server, conn net.Conn) *session {
	id := uuid.NewString()
	s := &session{
		id:         id,
		conn:       conn,
		srv:        srv,
		logger:     srv.logger.With(logging.String(logging.FieldSessionID, id)),
		writerDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// serve runs the session until the peer goes away, then flushes or abandons
// the outbound buffer before closing the socket.
func (s *session) serve(ctx context.Context) {
	metrics.SessionOpened()
	s.logger.Debug("session opened", logging.String(logging.FieldEventType, "session_opened"))

	go s.writeLoop()
	reason := s.readLoop(ctx)

	s.mu.Lock()
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.writerDone
	_ = s.conn.Close()

	metrics.SessionClosed(reason)
	s.logger.Debug("session closed",
		logging.String(logging.FieldEventType, "session_closed"),
		logging.String("reason", reason))
}

func (s *session) readLoop(ctx context.Context) string {
	buf := make([]byte, readChunk)
	var inbound []byte
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			inbound = append(inbound, buf[:n]...)
			var reason string
			inbound, reason = s.drain(ctx, inbound)
			if reason != "" {
				return reason
			}
			if limit := s.srv.maxPending; limit > 0 && len(inbound) > limit {
				logging.WarnWithContext(s.logger, "inbound buffer limit exceeded", "session_overflow",
					logging.Int("pending_bytes", len(inbound)),
					logging.Int("limit_bytes", limit),
					logging.String(logging.FieldImpact, "the peer is disconnected"),
					logging.String(logging.FieldErrorHint, "send smaller envelopes or raise hub.max_pending_bytes"))
				return closeOverflow
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return closeEOF
			case ctx.Err() != nil, errors.Is(err, net.ErrClosed):
				if s.isDead() {
					return closeWriteFailed
				}
				return closeShutdown
			default:
				s.logger.Debug("session read failed", logging.Error(err))
				return closeReadError
			}
		}
		if s.isDead() {
			return closeWriteFailed
		}
	}
}

// drain dispatches every complete envelope in inbound, in order, and returns
// the undecoded remainder.
func (s *session) drain(ctx context.Context, inbound []byte) ([]byte, string) {
	consumed := 0
	for {
		msg, size, err := wire.Decode(inbound[consumed:])
		if err != nil {
			reason := closeMalformed
			if errors.Is(err, wire.ErrFrameTooLarge) {
				reason = closeOverflow
			}
			logging.WarnWithContext(s.logger, "undecodable envelope", "session_"+reason,
				logging.Error(err),
				logging.String(logging.FieldImpact, "the peer is disconnected after pending replies flush"),
				logging.String(logging.FieldErrorHint, "peers must send a length-prefixed JSON object"))
			return nil, reason
		}
		if msg == nil {
			break
		}
		consumed += size
		if !s.enqueue(s.dispatch(ctx, msg)) {
			if s.isDead() {
				return nil, closeWriteFailed
			}
			logging.WarnWithContext(s.logger, "outbound buffer limit exceeded", "session_overflow",
				logging.Int("limit_bytes", s.srv.maxPending),
				logging.String(logging.FieldImpact, "the peer is disconnected"),
				logging.String(logging.FieldErrorHint, "peers must read replies before sending more requests"))
			return nil, closeOverflow
		}
	}
	if consumed == 0 {
		return inbound, ""
	}
	rest := inbound[consumed:]
	if len(rest) == 0 {
		return nil, ""
	}
	return append([]byte(nil), rest...), ""
}

func (s *session) dispatch(ctx context.Context, msg *wire.Message) *wire.Message {
	reply, err := s.srv.dispatcher.Dispatch(ctx, msg)
	if err != nil {
		s.logger.Warn("dispatch failed",
			logging.String(logging.FieldEventType, "dispatch_failed"),
			logging.String(logging.FieldPeerSource, msg.Source),
			logging.String(logging.FieldImpact, "the peer receives an error reply"),
			logging.String(logging.FieldErrorHint, "check hub logs for a stalled dispatch"),
			logging.Error(err))
		return unavailableReply
	}
	if reply == nil {
		return &wire.Message{Source: wire.SourceCommandCenter}
	}
	return reply
}

// enqueue appends the encoded reply to the outbound buffer. It reports false
// when the buffer is over its limit or the writer has given up.
func (s *session) enqueue(reply *wire.Message) bool {
	frame, err := wire.Encode(reply)
	if err != nil {
		s.logger.Warn("reply encode failed",
			logging.String(logging.FieldEventType, "reply_encode_failed"),
			logging.String(logging.FieldImpact, "the peer receives an error reply"),
			logging.String(logging.FieldErrorHint, "the reply exceeded the frame limit"),
			logging.Error(err))
		frame, _ = wire.Encode(unavailableReply)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return false
	}
	if limit := s.srv.maxPending; limit > 0 && len(s.outbound) > 0 && len(s.outbound)+len(frame) > limit {
		return false
	}
	s.outbound = append(s.outbound, frame...)
	s.cond.Signal()
	return true
}

// writeLoop flushes the outbound buffer. Bytes a write could not deliver are
// put back at the front and retried after a timeout; any other write error
// abandons the buffer.
func (s *session) writeLoop() {
	defer close(s.writerDone)
	for {
		s.mu.Lock()
		for len(s.outbound) == 0 && !s.closing {
			s.cond.Wait()
		}
		if len(s.outbound) == 0 || s.aborted {
			s.mu.Unlock()
			return
		}
		chunk := s.outbound
		s.outbound = nil
		s.mu.Unlock()

		_ = s.conn.SetWriteDeadline(time.Now().Add(s.srv.writeWait))
		n, err := s.conn.Write(chunk)
		if err == nil {
			continue
		}

		s.mu.Lock()
		rest := chunk[n:len(chunk):len(chunk)]
		s.outbound = append(rest, s.outbound...)
		pending := len(s.outbound)
		var netErr net.Error
		retry := errors.As(err, &netErr) && netErr.Timeout() && !s.closing && !s.aborted
		if !retry {
			s.dead = true
			s.outbound = nil
		}
		s.mu.Unlock()

		if retry {
			s.logger.Debug("write timed out, retaining outbound bytes",
				logging.Int("written_bytes", n),
				logging.Int("pending_bytes", pending))
			continue
		}
		if !s.isAborted() {
			logging.WarnWithContext(s.logger, "abandoning outbound replies", "session_write_failed",
				logging.Int("dropped_bytes", pending),
				logging.String(logging.FieldImpact, "the peer misses replies and is disconnected"),
				logging.String(logging.FieldErrorHint, "the peer stopped reading from the hub socket"),
				logging.Error(err))
		}
		_ = s.conn.Close()
		return
	}
}

// abort closes the connection without flushing.
func (s *session) abort() {
	s.mu.Lock()
	s.closing = true
	s.aborted = true
	s.cond.Broadcast()
	s.mu.Unlock()
	_ = s.conn.Close()
}

func (s *session) isDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

func (s *session) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}
