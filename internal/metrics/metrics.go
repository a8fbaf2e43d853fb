// ABOUTME: Prometheus metrics for update processing, transitions, leads and sends
// ABOUTME: Uses a private registry so tests and multiple instances never collide

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives dispatcher events.
type Recorder interface {
	// ObserveUpdate counts an inbound update by type and result
	// (processed, duplicate, ignored, error).
	ObserveUpdate(updateType, result string)
	// ObserveTransition counts an engine outcome for the state it started in.
	ObserveTransition(state, outcome string)
	// IncLead counts a recorded lead.
	IncLead(branch string)
	// ObserveOutbound counts a platform call by kind and status.
	ObserveOutbound(kind, status string)
	// ObserveHandle records the time spent on one update.
	ObserveHandle(d time.Duration)
}

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	updatesTotal     *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	leadsTotal       *prometheus.CounterVec
	outboundTotal    *prometheus.CounterVec
	handleDuration   prometheus.Histogram
}

// NewPrometheusRecorder creates a recorder with its own registry, including
// the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		updatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_updates_total",
				Help: "Inbound platform updates by type and result",
			},
			[]string{"update_type", "result"},
		),
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_transitions_total",
				Help: "Dialogue engine outcomes by starting state",
			},
			[]string{"state", "outcome"},
		),
		leadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_leads_total",
				Help: "Leads recorded by branch",
			},
			[]string{"branch"},
		),
		outboundTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_outbound_total",
				Help: "Outbound platform calls by kind and status",
			},
			[]string{"kind", "status"},
		),
		handleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "intake_update_duration_seconds",
				Help:    "Time spent handling one update, including storage and sends",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (p *PrometheusRecorder) ObserveUpdate(updateType, result string) {
	p.updatesTotal.WithLabelValues(updateType, result).Inc()
}

func (p *PrometheusRecorder) ObserveTransition(state, outcome string) {
	p.transitionsTotal.WithLabelValues(state, outcome).Inc()
}

func (p *PrometheusRecorder) IncLead(branch string) {
	p.leadsTotal.WithLabelValues(branch).Inc()
}

func (p *PrometheusRecorder) ObserveOutbound(kind, status string) {
	p.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (p *PrometheusRecorder) ObserveHandle(d time.Duration) {
	p.handleDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry, mainly for tests.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Nop discards everything. Used when metrics are disabled.
type Nop struct{}

func (Nop) ObserveUpdate(string, string)     {}
func (Nop) ObserveTransition(string, string) {}
func (Nop) IncLead(string)                   {}
func (Nop) ObserveOutbound(string, string)   {}
func (Nop) ObserveHandle(time.Duration)      {}

var (
	_ Recorder = (*PrometheusRecorder)(nil)
	_ Recorder = Nop{}
)
