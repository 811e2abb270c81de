// Package metrics holds Prometheus instruments shared across the edge.
// All collectors register with the global registry, so importing this
// package from cmd/edge is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	VerifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_verify_total",
			Help: "Verify-and-bind calls by final status.",
		}, []string{"status"})

	ProbeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_probe_total",
			Help: "Bid probes by outcome code.",
		}, []string{"code"})

	BindingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "binding_cache_hits_total",
			Help: "Binding reads served from the in-process cache.",
		})

	BindingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "binding_cache_misses_total",
			Help: "Binding reads that had to consult persistence.",
		})

	BindingRemoteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "binding_remote_errors_total",
			Help: "Degraded remote binding reads or writes.",
		})

	RouteDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_route_decisions_total",
			Help: "Route resolutions by runtime source (or failure).",
		}, []string{"source"})

	BidProxied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bid_proxy_total",
			Help: "Live bid requests forwarded upstream, by outcome.",
		}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		VerifyTotal,
		ProbeTotal,
		BindingCacheHits,
		BindingCacheMisses,
		BindingRemoteErrors,
		RouteDecisions,
		BidProxied,
	)
}
