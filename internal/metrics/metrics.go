// Package metrics exposes Prometheus collectors for the gateway's four core
// subsystems: per-host proxy traffic, upgrade passthroughs, auth decisions,
// and reload generations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbrp_proxy_requests_total",
		Help: "Total proxied requests by host, method, and status.",
	}, []string{"host", "method", "status"})

	ProxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lbrp_proxy_request_duration_seconds",
		Help:    "End-to-end proxied request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"host"})

	UpstreamInflight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lbrp_upstream_inflight_requests",
		Help: "In-flight requests per upstream.",
	}, []string{"upstream"})

	UpgradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbrp_protocol_upgrades_total",
		Help: "Protocol upgrade attempts by outcome.",
	}, []string{"outcome"})

	AuthDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbrp_auth_decisions_total",
		Help: "Auth middleware decisions by outcome.",
	}, []string{"outcome"})

	ReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lbrp_config_reloads_total",
		Help: "Total successfully applied config reload generations.",
	})

	ChildProcessesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lbrp_child_processes_running",
		Help: "Supervised child processes owned by the current generation.",
	})
)

// ObserveProxyResponse records one completed proxied request.
func ObserveProxyResponse(host, method string, status int, elapsed time.Duration) {
	ProxyRequestsTotal.WithLabelValues(host, method, statusBucket(status)).Inc()
	ProxyRequestDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

func IncUpstreamInflight(upstream string) { UpstreamInflight.WithLabelValues(upstream).Inc() }
func DecUpstreamInflight(upstream string) { UpstreamInflight.WithLabelValues(upstream).Dec() }

func ObserveUpgrade(outcome string) { UpgradesTotal.WithLabelValues(outcome).Inc() }
func ObserveAuthDecision(outcome string) { AuthDecisionsTotal.WithLabelValues(outcome).Inc() }
