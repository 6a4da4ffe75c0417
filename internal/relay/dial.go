package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"mediahub/internal/logging"
	"mediahub/internal/metrics"
	"mediahub/internal/wire"
)

// DefaultDIALPort is where cast receivers expose their DIAL REST service.
const DefaultDIALPort = "8008"

var (
	// ErrUnknownDevice is returned for a device record without a usable address.
	ErrUnknownDevice = errors.New("relay: device has no address")
	// ErrSessionClosed is returned when a relay session goes away mid-call.
	ErrSessionClosed = errors.New("relay: session closed")
)

// DIALClient launches and stops receiver apps over DIAL REST.
type DIALClient struct {
	http   *http.Client
	logger *slog.Logger
}

// NewDIALClient returns a client whose requests time out after timeout.
func NewDIALClient(timeout time.Duration, logger *slog.Logger) *DIALClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DIALClient{
		http:   &http.Client{Timeout: timeout},
		logger: logging.NewComponentLogger(logger, "dial"),
	}
}

// Launch starts appID on device and returns the receiver's HTTP status.
func (c *DIALClient) Launch(ctx context.Context, device wire.Device, appID string) (string, error) {
	base, err := AppURL(device)
	if err != nil {
		return "", err
	}
	status, err := c.do(ctx, http.MethodPost, base+appID)
	metrics.ObserveRelay("launch", err)
	return status, err
}

// Exit stops the running instance of appID on device.
func (c *DIALClient) Exit(ctx context.Context, device wire.Device, appID string) (string, error) {
	base, err := AppURL(device)
	if err != nil {
		return "", err
	}
	status, err := c.do(ctx, http.MethodDelete, base+appID+"/run")
	metrics.ObserveRelay("exit", err)
	return status, err
}

func (c *DIALClient) do(ctx context.Context, method, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", fmt.Errorf("build dial request: %w", err)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("dial %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	c.logger.Debug("dial request",
		logging.String("method", method),
		logging.String("url", target),
		logging.Int("status", resp.StatusCode),
	)
	if resp.StatusCode >= 400 {
		return resp.Status, fmt.Errorf("dial %s %s: %s", method, target, resp.Status)
	}
	return resp.Status, nil
}

// AppURL returns the DIAL application base URL for device, ending in a
// slash. A reported "app_url" wins; otherwise the receiver's default port is
// assumed.
func AppURL(device wire.Device) (string, error) {
	if v, ok := device["app_url"].(string); ok && strings.TrimSpace(v) != "" {
		v = strings.TrimSpace(v)
		if !strings.HasSuffix(v, "/") {
			v += "/"
		}
		return v, nil
	}
	addr := device.Address()
	if addr == "" {
		return "", ErrUnknownDevice
	}
	host := addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		host = net.JoinHostPort(addr, DefaultDIALPort)
	}
	return "http://" + host + "/apps/", nil
}
