// Package metrics holds the Prometheus collectors exported by the relay.
//
// Collectors are created at package initialisation so that instrumented code can
// record values unconditionally; Register attaches them to a registry once at startup.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"incidentrelay/pkg/logging"
)

const namespace = "incidentrelay"

// Result label values shared by the counters below.
const (
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultUnauthorized = "unauthorized"
	ResultExpired      = "expired"
)

var (
	ExchangeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oauth_exchange_total",
		Help:      "Authorization code exchanges by result.",
	}, []string{"result"})

	RefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oauth_refresh_total",
		Help:      "Token refreshes by result.",
	}, []string{"result"})

	Sessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Current number of sessions by state.",
	}, []string{"state"})

	SessionsCollectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_collected_total",
		Help:      "Sessions removed by the idle/pending cleanup loop.",
	})

	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "incident_fetch_total",
		Help:      "Upstream incident fetches by result.",
	}, []string{"result"})

	FetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "incident_fetch_duration_seconds",
		Help:      "Latency of upstream incident fetches.",
		Buckets:   prometheus.DefBuckets,
	})

	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hub_connections",
		Help:      "Live real-time connections.",
	})

	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hub_broadcasts_total",
		Help:      "Broadcast events by event type.",
	}, []string{"type"})

	PrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hub_pruned_connections_total",
		Help:      "Connections pruned because their transport was closed.",
	})

	PollCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_cycles_total",
		Help:      "Poll/notify cycles by result.",
	}, []string{"result"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
)

var registerOnce sync.Once

// Register attaches all collectors to reg. It is safe to call more than once;
// only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			logging.Error("Bootstrap", nil, "Prometheus registry is nil, cannot register metrics")
			return
		}
		collectors := []prometheus.Collector{
			ExchangeTotal, RefreshTotal, Sessions, SessionsCollectedTotal,
			FetchTotal, FetchDuration, Connections, BroadcastsTotal, PrunedTotal,
			PollCyclesTotal, HTTPRequestsTotal,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				logging.Warn("Bootstrap", "Failed to register metric: %v", err)
			}
		}
		logging.Debug("Bootstrap", "Registered %d Prometheus collectors", len(collectors))
	})
}

// Handler returns the HTTP handler serving the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
