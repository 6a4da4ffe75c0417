// Package metrics provides Prometheus metrics for the hub.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediahub/internal/wire"
)

const namespace = "mediahub"

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "dispatch_total",
		Help:      "Messages dispatched by peer source and outcome",
	}, []string{"source", "outcome"})

	dispatchSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "dispatch_seconds",
		Help:      "Time spent dispatching one message on the hub loop",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"source"})

	sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "sessions_open",
		Help:      "Open peer connections",
	})

	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "sessions_closed_total",
		Help:      "Closed peer connections by reason",
	}, []string{"reason"})

	stateSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      "entries",
		Help:      "Entries held in the hub's in-memory state",
	}, []string{"collection"})

	workerUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "worker_up",
		Help:      "1 when the worker process is running",
	}, []string{"worker"})

	workerRestarts = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supervisor",
		Name:      "worker_restarts",
		Help:      "Restarts performed by the watchdog",
	}, []string{"worker"})

	relayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "requests_total",
		Help:      "Relay calls by kind and outcome",
	}, []string{"kind", "outcome"})
)

// ObserveDispatch records one routed message.
func ObserveDispatch(source string, failed bool, seconds float64) {
	if source == "" {
		source = "none"
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	dispatchTotal.WithLabelValues(source, outcome).Inc()
	dispatchSeconds.WithLabelValues(source).Observe(seconds)
}

// SessionOpened increments the open-session gauge.
func SessionOpened() {
	sessionsOpen.Inc()
}

// SessionClosed decrements the open-session gauge and counts the reason.
func SessionClosed(reason string) {
	sessionsOpen.Dec()
	sessionsClosed.WithLabelValues(reason).Inc()
}

// SetStateSummary publishes the sizes of the hub's collections.
func SetStateSummary(sum wire.Summary) {
	stateSize.WithLabelValues("devices").Set(float64(sum.Devices))
	stateSize.WithLabelValues("movies").Set(float64(sum.Movies))
	stateSize.WithLabelValues("tv").Set(float64(sum.TV))
	stateSize.WithLabelValues("pending_jobs").Set(float64(sum.PendingJobs))
	stateSize.WithLabelValues("in_flight_jobs").Set(float64(sum.InFlightJobs))
	stateSize.WithLabelValues("relay_sessions").Set(float64(sum.RelaySessions))
}

// SetWorkers publishes the supervisor roster.
func SetWorkers(workers []wire.WorkerStatus) {
	for _, w := range workers {
		up := 0.0
		if w.State == "running" {
			up = 1
		}
		workerUp.WithLabelValues(w.Name).Set(up)
		workerRestarts.WithLabelValues(w.Name).Set(float64(w.Restarts))
	}
}

// ObserveRelay records one relay call.
func ObserveRelay(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	relayRequests.WithLabelValues(kind, outcome).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
