package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"mediahub/internal/metrics"
	"mediahub/internal/wire"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestHandlerExposesHubMetrics(t *testing.T) {
	metrics.ObserveDispatch(wire.SourceCLI, false, 0.001)
	metrics.ObserveDispatch("", true, 0.001)
	metrics.SessionOpened()
	metrics.SessionClosed("eof")
	metrics.SetStateSummary(wire.Summary{Devices: 2, PendingJobs: 3})
	metrics.SetWorkers([]wire.WorkerStatus{{Name: "converter", State: "running", Restarts: 4}})
	metrics.ObserveRelay("launch", errors.New("refused"))

	body := scrape(t)
	for _, want := range []string{
		`mediahub_hub_dispatch_total{outcome="ok",source="cli"}`,
		`mediahub_hub_dispatch_total{outcome="error",source="none"}`,
		`mediahub_hub_sessions_closed_total{reason="eof"}`,
		`mediahub_state_entries{collection="pending_jobs"} 3`,
		`mediahub_supervisor_worker_up{worker="converter"} 1`,
		`mediahub_supervisor_worker_restarts{worker="converter"} 4`,
		`mediahub_relay_requests_total{kind="launch",outcome="error"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
