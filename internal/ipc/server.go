package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"mediahub/internal/logging"
	"mediahub/internal/wire"
)

// Dispatcher handles one decoded request and returns the reply to send back.
// An error means no reply could be produced; the session answers with a
// generic failure and keeps serving.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *wire.Message) (*wire.Message, error)
}

// Options tunes per-session buffering.
type Options struct {
	// MaxPendingBytes caps both the undecoded inbound buffer and the unsent
	// outbound buffer of one session. Zero disables the cap.
	MaxPendingBytes int
	// WriteTimeout bounds a single socket write attempt.
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Server accepts hub peers on a Unix domain socket.
type Server struct {
	path       string
	dispatcher Dispatcher
	logger     *slog.Logger
	listener   net.Listener
	maxPending int
	writeWait  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// NewServer binds the socket at path, replacing any stale socket file left by
// a previous run.
func NewServer(ctx context.Context, path string, d Dispatcher, opts Options) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires a dispatcher")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	writeWait := opts.WriteTimeout
	if writeWait <= 0 {
		writeWait = 5 * time.Second
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:       path,
		dispatcher: d,
		logger:     logging.NewComponentLogger(logger, "ipc"),
		listener:   listener,
		maxPending: opts.MaxPendingBytes,
		writeWait:  writeWait,
		ctx:        serverCtx,
		cancel:     cancel,
		sessions:   make(map[*session]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Info("hub socket listening",
		logging.String(logging.FieldEventType, "ipc_listen"),
		logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "hub peers may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the hub if needed"))
				continue
			}
			sess := newSession(s, conn)
			if !s.track(sess, true) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.track(sess, false)
				sess.serve(s.ctx)
			}()
		}
	}()
}

// SessionCount reports the number of connected peers.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// track registers or releases a session. Registration fails once Close has
// started, since Close only aborts sessions it can see.
func (s *Server) track(sess *session, open bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !open {
		delete(s.sessions, sess)
		return true
	}
	if s.ctx.Err() != nil {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

// Close stops accepting, ends every session, and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for sess := range s.sessions {
		sess.abort()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "a stale socket file is left behind"),
			logging.String(logging.FieldErrorHint, "the next hub start removes it automatically"))
	}
}
