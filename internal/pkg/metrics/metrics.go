package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admissions counts purchase outcomes by terminal state or reject reason.
	Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_admissions_total",
		Help: "Purchase admission outcomes.",
	}, []string{"outcome"})

	// Compensations counts compensating actions by the step being undone.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashsale_compensations_total",
		Help: "Compensating stock/quota releases.",
	}, []string{"step"})

	// CompensationEscalations counts compensations handed to reconciliation
	// after the retry budget ran out.
	CompensationEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashsale_compensation_escalations_total",
		Help: "Compensations abandoned to reconciliation.",
	})

	// InvariantViolations counts records where durable truth contradicts a
	// stock or quota invariant.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashsale_invariant_violations_total",
		Help: "Stock or quota invariant violations found during reconcile.",
	})
)
