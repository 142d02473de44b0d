package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Audit writes and event publishes happen after the status mutation has
// committed; their failures cannot roll anything back, so they must at
// least be visible. These counters are the floor for that visibility.
var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "depot",
		Subsystem: "inventory",
		Name:      "transitions_total",
		Help:      "Committed device lifecycle transitions by action.",
	}, []string{"action"})

	auditFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Subsystem: "inventory",
		Name:      "audit_failures_total",
		Help:      "Audit log writes that failed after a committed transition.",
	})

	publishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "depot",
		Subsystem: "inventory",
		Name:      "publish_failures_total",
		Help:      "Domain event publishes that failed after a committed transition.",
	})
)
