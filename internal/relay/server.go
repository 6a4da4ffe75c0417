package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mediahub/internal/logging"
)

// Registry receives relay sessions as they attach and detach. The hub
// implements it by forwarding both events to its loop.
type Registry interface {
	Attach(sess *Session)
	Detach(sess *Session)
}

// ServerOptions configures the relay HTTP server.
type ServerOptions struct {
	Bind     string
	Registry Registry
	Metrics  http.Handler
	Logger   *slog.Logger
}

// Server accepts relay WebSocket connections on /relay and serves /metrics.
type Server struct {
	bind     string
	registry Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

// NewServer builds a server. Call Start to listen.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		bind:     opts.Bind,
		registry: opts.Registry,
		logger:   logging.NewComponentLogger(logger, "relay"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return isLoopbackOrigin(r)
			},
		},
		mux:      http.NewServeMux(),
		sessions: make(map[*Session]struct{}),
	}
	s.mux.HandleFunc("/relay", s.handleRelay)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if opts.Metrics != nil {
		s.mux.Handle("/metrics", opts.Metrics)
	}
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured bind address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen relay %s: %w", s.bind, err)
	}
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	s.mu.Lock()
	s.http = srv
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("relay server listening",
		logging.String(logging.FieldEventType, "relay_listen"),
		logging.String("bind", listener.Addr().String()),
	)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay server stopped",
				logging.String(logging.FieldEventType, "relay_serve_failed"),
				logging.Error(err),
			)
		}
	}()
	return nil
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener and ends every attached session.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	addr := strings.TrimSpace(r.URL.Query().Get("addr"))
	if addr == "" {
		http.Error(w, "addr query parameter required", http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("relay upgrade failed",
			logging.String(logging.FieldEventType, "relay_upgrade_failed"),
			logging.String(logging.FieldErrorHint, "relays must connect with a WebSocket handshake"),
			logging.String(logging.FieldImpact, "the relay is not attached"),
			logging.Error(err),
		)
		return
	}

	sess := newSession(addr, conn, s.logger)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	sess.logger.Info("relay attached", logging.String(logging.FieldEventType, "relay_attached"))
	if s.registry != nil {
		s.registry.Attach(sess)
	}

	sess.run()

	if s.registry != nil {
		s.registry.Detach(sess)
	}
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	sess.logger.Info("relay detached", logging.String(logging.FieldEventType, "relay_detached"))
}

func isLoopbackOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
