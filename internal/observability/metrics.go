package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Supervisor state transitions.",
		},
		[]string{"from", "to"},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "lifecycle",
			Name:      "disconnects_total",
			Help:      "Session closes by classified cause.",
		},
		[]string{"cause"},
	)
	pairingTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "lifecycle",
			Name:      "pairing_window_timeouts_total",
			Help:      "Pairing windows that elapsed with no challenge or open signal.",
		},
	)
	connectionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bridgectl",
			Subsystem: "lifecycle",
			Name:      "connection_up",
			Help:      "1 while the session is connected, 0 otherwise.",
		},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "send",
			Name:      "requests_total",
			Help:      "Outbound send attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			lifecycleTransitions, disconnects, pairingTimeouts, connectionUp,
			sends,
		)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordTransition(from, to string) {
	RegisterMetrics()
	lifecycleTransitions.WithLabelValues(from, to).Inc()
}

func RecordDisconnect(cause string) {
	RegisterMetrics()
	disconnects.WithLabelValues(cause).Inc()
}

func RecordPairingTimeout() {
	RegisterMetrics()
	pairingTimeouts.Inc()
}

func SetConnected(up bool) {
	RegisterMetrics()
	if up {
		connectionUp.Set(1)
		return
	}
	connectionUp.Set(0)
}

func RecordSend(ok bool) {
	RegisterMetrics()
	outcome := "rejected"
	if ok {
		outcome = "sent"
	}
	sends.WithLabelValues(outcome).Inc()
}
