package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mediahub/internal/relay"
	"mediahub/internal/wire"
)

func TestDIALLaunchAndExit(t *testing.T) {
	type call struct{ method, path string }
	calls := make(chan call, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- call{r.Method, r.URL.Path}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := relay.NewDIALClient(time.Second, nil)
	device := wire.Device{"ip": "10.0.0.5", "app_url": srv.URL + "/apps"}

	status, err := client.Launch(context.Background(), device, "app-1")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if !strings.HasPrefix(status, "201") {
		t.Fatalf("unexpected launch status %q", status)
	}
	if got := <-calls; got != (call{http.MethodPost, "/apps/app-1"}) {
		t.Fatalf("unexpected launch request %+v", got)
	}

	if _, err := client.Exit(context.Background(), device, "app-1"); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if got := <-calls; got != (call{http.MethodDelete, "/apps/app-1/run"}) {
		t.Fatalf("unexpected exit request %+v", got)
	}
}

func TestDIALReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := relay.NewDIALClient(time.Second, nil)
	status, err := client.Launch(context.Background(), wire.Device{"app_url": srv.URL + "/apps/"}, "missing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.HasPrefix(status, "404") {
		t.Fatalf("expected status forwarded, got %q", status)
	}
}

func TestAppURL(t *testing.T) {
	cases := []struct {
		device wire.Device
		want   string
	}{
		{wire.Device{"ip": "10.0.0.5"}, "http://10.0.0.5:8008/apps/"},
		{wire.Device{"address": "10.0.0.5:9000"}, "http://10.0.0.5:9000/apps/"},
		{wire.Device{"ip": "10.0.0.5", "app_url": "http://10.0.0.5:8008/apps"}, "http://10.0.0.5:8008/apps/"},
	}
	for _, tc := range cases {
		got, err := relay.AppURL(tc.device)
		if err != nil {
			t.Fatalf("AppURL(%v): %v", tc.device, err)
		}
		if got != tc.want {
			t.Fatalf("AppURL(%v) = %q, want %q", tc.device, got, tc.want)
		}
	}
	if _, err := relay.AppURL(wire.Device{"name": "x"}); !errors.Is(err, relay.ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice, got %v", err)
	}
}

type chanRegistry struct {
	attached chan *relay.Session
	detached chan *relay.Session
}

func newChanRegistry() *chanRegistry {
	return &chanRegistry{
		attached: make(chan *relay.Session, 4),
		detached: make(chan *relay.Session, 4),
	}
}

func (r *chanRegistry) Attach(s *relay.Session) { r.attached <- s }
func (r *chanRegistry) Detach(s *relay.Session) { r.detached <- s }

func startRelayServer(t *testing.T) (*chanRegistry, string) {
	t.Helper()
	reg := newChanRegistry()
	server := relay.NewServer(relay.ServerOptions{Registry: reg})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return reg, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func waitSession(t *testing.T, ch <-chan *relay.Session) *relay.Session {
	t.Helper()
	select {
	case sess := <-ch:
		return sess
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for relay session event")
		return nil
	}
}

func TestSessionCommunicateRoundTrip(t *testing.T) {
	reg, base := startRelayServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(base+"/relay?addr=10.0.0.5", nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	sess := waitSession(t, reg.attached)
	if sess.Addr() != "10.0.0.5" || sess.ID() == "" {
		t.Fatalf("unexpected session %q %q", sess.Addr(), sess.ID())
	}

	go func() {
		var msg wire.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"echo": msg.Cmd, "addr": msg.Addr})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := sess.Communicate(ctx, &wire.Message{Source: wire.SourceCLI, Cmd: wire.CmdControl, Addr: "10.0.0.5"})
	if err != nil {
		t.Fatalf("Communicate: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(reply, &decoded); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if decoded["echo"] != wire.CmdControl || decoded["addr"] != "10.0.0.5" {
		t.Fatalf("unexpected reply %s", reply)
	}

	conn.Close()
	if got := waitSession(t, reg.detached); got != sess {
		t.Fatal("expected the same session to detach")
	}
	if _, err := sess.Communicate(context.Background(), &wire.Message{}); err == nil {
		t.Fatal("expected error after detach")
	}
}

func TestSessionCommunicateTimesOut(t *testing.T) {
	reg, base := startRelayServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(base+"/relay?addr=10.0.0.6", nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	sess := waitSession(t, reg.attached)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := sess.Communicate(ctx, &wire.Message{Cmd: wire.CmdControl}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRelayRequiresAddr(t *testing.T) {
	server := relay.NewServer(relay.ServerOptions{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/relay", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestServerStartAndClose(t *testing.T) {
	var metricsHit atomic.Bool
	server := relay.NewServer(relay.ServerOptions{
		Bind: "127.0.0.1:0",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			metricsHit.Store(true)
			w.WriteHeader(http.StatusOK)
		}),
	})
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if !metricsHit.Load() {
		t.Fatal("expected metrics handler to be mounted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
