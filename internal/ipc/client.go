package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"mediahub/internal/wire"
)

// DefaultTimeout bounds one request/reply exchange when the caller sets no
// deadline.
const DefaultTimeout = 10 * time.Second

var (
	// ErrTimeout is returned when the hub does not reply in time.
	ErrTimeout = errors.New("ipc: hub did not reply in time")
	// ErrClientClosed is returned by calls on a closed or broken client.
	ErrClientClosed = errors.New("ipc: client closed")
)

// ReplyError carries the text of a failure reply.
type ReplyError struct {
	Text string
}

func (e *ReplyError) Error() string {
	return e.Text
}

// TimeoutReply is the reply Call returns together with ErrTimeout.
func TimeoutReply() *wire.Message {
	return &wire.Message{Error: "timeout"}
}

// Client sends requests to the hub over its Unix socket.
type Client struct {
	source  string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to the hub socket. Requests are stamped with source.
func Dial(path, source string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, err
	}
	return &Client{source: source, timeout: timeout, conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Call writes msg and waits for the matching reply. A missing Source is
// filled with the client's source. On timeout the connection is dropped,
// since a late reply would otherwise be read as the answer to the next call.
func (c *Client) Call(ctx context.Context, msg *wire.Message) (*wire.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrClientClosed
	}
	if msg.Source == "" {
		msg.Source = c.source
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := wire.WriteMessage(c.conn, msg); err != nil {
		return c.fail(ctx, err)
	}
	reply, err := wire.ReadMessage(c.conn)
	if err != nil {
		return c.fail(ctx, err)
	}
	return reply, nil
}

func (c *Client) fail(ctx context.Context, err error) (*wire.Message, error) {
	_ = c.conn.Close()
	c.conn = nil
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ctx.Err()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || ctx.Err() != nil {
		return TimeoutReply(), ErrTimeout
	}
	return nil, err
}

// do performs Call and turns failure replies into *ReplyError.
func (c *Client) do(ctx context.Context, msg *wire.Message) (*wire.Message, error) {
	reply, err := c.Call(ctx, msg)
	if err != nil {
		return reply, err
	}
	if reply.Failed() {
		text := reply.Error
		if text == "" {
			text = reply.Message
		}
		return reply, &ReplyError{Text: text}
	}
	return reply, nil
}

// Devices returns the device registry.
func (c *Client) Devices(ctx context.Context) ([]wire.Device, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdDevices})
	if err != nil {
		return nil, err
	}
	return reply.Devices, nil
}

// Movies returns the movie catalog.
func (c *Client) Movies(ctx context.Context) ([]json.RawMessage, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdMovies})
	if err != nil {
		return nil, err
	}
	return reply.Movies, nil
}

// TV returns the television catalog.
func (c *Client) TV(ctx context.Context) ([]json.RawMessage, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdTV})
	if err != nil {
		return nil, err
	}
	return reply.TV, nil
}

// Launch starts the receiver application on the device at addr and returns
// the receiver's HTTP status.
func (c *Client) Launch(ctx context.Context, addr string) (string, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdLaunch, Addr: addr})
	if err != nil {
		return "", err
	}
	return reply.Status, nil
}

// Exit stops the receiver application on the device at addr.
func (c *Client) Exit(ctx context.Context, addr string) (string, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdExit, Addr: addr})
	if err != nil {
		return "", err
	}
	return reply.Status, nil
}

// Control forwards payload to the relay attached for addr and returns the
// relay's raw reply.
func (c *Client) Control(ctx context.Context, addr string, payload json.RawMessage) (json.RawMessage, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdControl, Addr: addr, Payload: payload})
	if err != nil {
		return nil, err
	}
	return reply.Reply, nil
}

// Queue returns pending and in-flight jobs.
func (c *Client) Queue(ctx context.Context) (pending, inFlight []wire.Job, err error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdQueue})
	if err != nil {
		return nil, nil, err
	}
	return reply.Jobs, reply.InFlight, nil
}

// Enqueue adds file to the transcode queue.
func (c *Client) Enqueue(ctx context.Context, file string) (*wire.Job, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdEnqueue, File: file})
	if err != nil {
		return nil, err
	}
	return reply.Job, nil
}

// Workers returns the supervisor roster.
func (c *Client) Workers(ctx context.Context) ([]wire.WorkerStatus, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdWorkers})
	if err != nil {
		return nil, err
	}
	return reply.Workers, nil
}

// Status returns the hub state summary.
func (c *Client) Status(ctx context.Context) (*wire.Summary, error) {
	reply, err := c.do(ctx, &wire.Message{Cmd: wire.CmdStatus})
	if err != nil {
		return nil, err
	}
	if reply.Summary == nil {
		return &wire.Summary{}, nil
	}
	return reply.Summary, nil
}

// PublishDevices replaces or adds device records, as a discoverer does.
func (c *Client) PublishDevices(ctx context.Context, devices []wire.Device) error {
	_, err := c.do(ctx, &wire.Message{Devices: devices})
	return err
}

// PublishCatalog replaces the catalog and queues files for transcoding, as a
// scanner does.
func (c *Client) PublishCatalog(ctx context.Context, movies, tv []json.RawMessage, transcode []string) error {
	_, err := c.do(ctx, &wire.Message{Movies: movies, TV: tv, Transcode: transcode})
	return err
}

// ClaimJob asks for the next transcode job. It returns nil when the queue is
// empty.
func (c *Client) ClaimJob(ctx context.Context) (*wire.Job, error) {
	reply, err := c.do(ctx, &wire.Message{Request: wire.RequestJob})
	if err != nil {
		return nil, err
	}
	if reply.NoJob || reply.Job == nil {
		return nil, nil
	}
	return reply.Job, nil
}

// ReportProgress records a progress payload for the in-flight job on file.
func (c *Client) ReportProgress(ctx context.Context, file string, progress any) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = c.do(ctx, &wire.Message{File: file, Progress: raw})
	return err
}

// ReportStatus records a status line for the in-flight job on file.
func (c *Client) ReportStatus(ctx context.Context, file, status string) error {
	_, err := c.do(ctx, &wire.Message{File: file, Status: status})
	return err
}

// Complete marks the job on file as done.
func (c *Client) Complete(ctx context.Context, file string) error {
	_, err := c.do(ctx, &wire.Message{Complete: file})
	return err
}
