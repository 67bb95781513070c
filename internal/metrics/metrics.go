package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry; main builds one and hands it to the
// components that record into it. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	authAttempts   *prometheus.CounterVec
	gateRejections *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		authAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantcore_auth_attempts_total",
				Help: "Authentication attempts by event and outcome.",
			},
			[]string{"event", "outcome"},
		),
		gateRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantcore_auth_gate_rejections_total",
				Help: "Requests rejected by the auth gate, by reason.",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) AuthAttempt(event string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.authAttempts.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) GateRejected(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}

// Registry is exposed for tests that gather from it directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
