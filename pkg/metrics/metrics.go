package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

type Registry struct {
	reg            *prometheus.Registry
	ToolCalls      *prometheus.CounterVec
	PolicyDenials  *prometheus.CounterVec
	TurnLatencySec *prometheus.HistogramVec
	HTTPRequests   *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "corecraft_tool_calls_total",
		Help: "Tool calls by agent, tool and outcome.",
	}, []string{"agent", "tool", "outcome"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "corecraft_policy_denials_total",
		Help: "Business rule denials by operation and rule.",
	}, []string{"op", "rule"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "corecraft_turn_latency_seconds",
		Help:    "Chat turn latency.",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"outcome"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "corecraft_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})

	r.MustRegister(toolCalls, denials, latency, httpRequests)
	return &Registry{
		reg:            r,
		ToolCalls:      toolCalls,
		PolicyDenials:  denials,
		TurnLatencySec: latency,
		HTTPRequests:   httpRequests,
	}
}

func (r *Registry) ObserveTool(agent, tool, outcome string) {
	r.ToolCalls.WithLabelValues(agent, tool, outcome).Inc()
}

func (r *Registry) ObservePolicyDenial(op, rule string) {
	r.PolicyDenials.WithLabelValues(op, rule).Inc()
}

func (r *Registry) ObserveTurn(start time.Time, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	r.TurnLatencySec.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
