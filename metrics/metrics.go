package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-portal"
)

const namespace = "portal"

// Collector exports portal policy counters to Prometheus.
type Collector struct {
	registry *prometheus.Registry

	inviteRedemptions *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	guardDecisions    *prometheus.CounterVec
	auditFailures     prometheus.Counter
}

var _ portal.Metrics = (*Collector)(nil)

// New creates a collector with its own registry. Process and Go runtime
// collectors are registered alongside the portal counters.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		inviteRedemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invite_redemptions_total",
				Help:      "Invite code redemption attempts by result.",
			},
			[]string{"result"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Record status transitions by kind, target status and result.",
			},
			[]string{"kind", "status", "result"},
		),
		guardDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_decisions_total",
				Help:      "Route guard decisions by reason.",
			},
			[]string{"decision"},
		),
		auditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_failures_total",
				Help:      "Audit entries that could not be written.",
			},
		),
	}

	c.registry.MustRegister(
		c.inviteRedemptions,
		c.transitions,
		c.guardDecisions,
		c.auditFailures,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)

	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) InviteRedemption(result string) {
	c.inviteRedemptions.WithLabelValues(result).Inc()
}

func (c *Collector) Transition(kind, status, result string) {
	c.transitions.WithLabelValues(kind, status, result).Inc()
}

func (c *Collector) GuardDecision(decision string) {
	c.guardDecisions.WithLabelValues(decision).Inc()
}

func (c *Collector) AuditFailure() {
	c.auditFailures.Inc()
}
