package moderation

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts status change attempts by record kind and outcome
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_transitions_total",
			Help: "Status change attempts by record kind, target status and result",
		},
		[]string{"kind", "to", "result"},
	)

	// Conflicts counts lost test-and-set races that forced a re-read
	Conflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_write_conflicts_total",
			Help: "Test-and-set commits that lost to a concurrent writer",
		},
		[]string{"kind"},
	)

	// FlagsCreated counts flags created from analyzer verdicts
	FlagsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_flags_created_total",
			Help: "Content flags created from analyzer verdicts",
		},
		[]string{"subject_type", "severity"},
	)
)

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}
