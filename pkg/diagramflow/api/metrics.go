package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the transport-level Prometheus collectors.
type Metrics struct {
	Requests    *prometheus.CounterVec
	Generations *prometheus.CounterVec
	Events      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them, plus an
// active-sessions gauge reading sessions(), with reg.
func NewMetrics(reg prometheus.Registerer, sessions func() int) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagramflow_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagramflow_generations_total",
				Help: "Generation requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diagramflow_stream_events_total",
				Help: "Streaming protocol events sent, by tag",
			},
			[]string{"tag"},
		),
	}

	reg.MustRegister(m.Requests, m.Generations, m.Events)
	if sessions != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "diagramflow_active_sessions",
				Help: "Canvas sessions held in memory",
			},
			func() float64 { return float64(sessions()) },
		))
	}
	return m
}

func (m *Metrics) request(route string, status int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) generation(mode string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Generations.WithLabelValues(mode, outcome).Inc()
}
