package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mediahub/internal/logging"
	"mediahub/internal/metrics"
	"mediahub/internal/wire"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Session is one attached relay WebSocket for a device address. Each
// Communicate call writes one message and waits for exactly one reply.
type Session struct {
	id     string
	addr   string
	conn   *websocket.Conn
	logger *slog.Logger

	callMu  sync.Mutex
	writeMu sync.Mutex
	replies chan json.RawMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(addr string, conn *websocket.Conn, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:   id,
		addr: addr,
		conn: conn,
		logger: logger.With(
			logging.String(logging.FieldDeviceAddr, addr),
			logging.String(logging.FieldSessionID, id),
		),
		replies: make(chan json.RawMessage, 1),
		done:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the device address the relay attached for.
func (s *Session) Addr() string {
	return s.addr
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Communicate forwards msg to the relay and waits for its reply.
func (s *Session) Communicate(ctx context.Context, msg *wire.Message) (json.RawMessage, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	// Discard anything the relay sent while no call was waiting.
	select {
	case <-s.replies:
	default:
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode relay message: %w", err)
	}
	if err := s.write(websocket.TextMessage, payload); err != nil {
		metrics.ObserveRelay("communicate", err)
		return nil, err
	}

	select {
	case reply := <-s.replies:
		metrics.ObserveRelay("communicate", nil)
		return reply, nil
	case <-s.done:
		metrics.ObserveRelay("communicate", ErrSessionClosed)
		return nil, ErrSessionClosed
	case <-ctx.Done():
		metrics.ObserveRelay("communicate", ctx.Err())
		return nil, fmt.Errorf("relay %s: %w", s.addr, ctx.Err())
	}
}

func (s *Session) write(kind int, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("relay %s: %w", s.addr, err)
	}
	if err := s.conn.WriteMessage(kind, payload); err != nil {
		return fmt.Errorf("relay %s: write: %w", s.addr, err)
	}
	return nil
}

// run pumps replies until the connection fails or Close is called.
func (s *Session) run() {
	defer s.Close()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.ping()

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("relay read failed",
					logging.String(logging.FieldEventType, "relay_read_failed"),
					logging.String(logging.FieldErrorHint, "the relay will be detached until it reconnects"),
					logging.String(logging.FieldImpact, "device control commands fail for this address"),
					logging.Error(err),
				)
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if !json.Valid(data) {
			s.logger.Debug("relay sent non-JSON frame", logging.Int("bytes", len(data)))
			continue
		}
		select {
		case s.replies <- json.RawMessage(data):
		default:
			s.logger.Debug("relay reply dropped, no caller waiting")
		}
	}
}

func (s *Session) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close ends the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
}
