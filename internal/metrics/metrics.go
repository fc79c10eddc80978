// Package metrics exposes the relay's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	inboundRequests    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "relay_inbound_requests_total", Help: "Forward requests by response code"}, []string{"code"})
	synthesisFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "relay_synthesis_failures_total", Help: "Action synthesis failures"})
	invocations        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "relay_invocations_total", Help: "Completed invocations by outcome"}, []string{"outcome"})
	deliveries         = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "relay_deliveries_total", Help: "Webhook deliveries by outcome"}, []string{"outcome"})
	unhandledErrors    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "relay_unhandled_errors_total", Help: "Background errors by kind"}, []string{"kind"})
	inflightInvocation = prometheus.NewGauge(prometheus.GaugeOpts{Name: "relay_invocations_inflight", Help: "Invocations currently executing"})
)

func init() {
	prometheus.MustRegister(inboundRequests, synthesisFailures, invocations, deliveries, unhandledErrors, inflightInvocation)
}

// Handler serves the default registry in the exposition format.
func Handler() http.Handler { return promhttp.Handler() }

func IncInbound(code string) { inboundRequests.WithLabelValues(code).Inc() }

func IncSynthesisFailure() { synthesisFailures.Inc() }

// IncInvocation counts a finished invocation; outcome is "succeeded" or "failed".
func IncInvocation(outcome string) { invocations.WithLabelValues(outcome).Inc() }

// IncDelivery counts one webhook attempt; outcome is "delivered", "encoding_error" or "delivery_error".
func IncDelivery(outcome string) { deliveries.WithLabelValues(outcome).Inc() }

func IncUnhandledError(kind string) { unhandledErrors.WithLabelValues(kind).Inc() }

func InflightAdd(delta float64) { inflightInvocation.Add(delta) }
