package observability

import "github.com/prometheus/client_golang/prometheus"

// Claim outcomes.
const (
	OutcomeClaimed  = "claimed"
	OutcomeObserved = "observed"
	OutcomeError    = "error"
)

var (
	// claimsTotal counts claim attempts by component (message, run, identity,
	// link_code) and outcome (claimed, observed, error).
	claimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_total",
			Help: "Total number of exactly-once claim attempts.",
		},
		[]string{"component", "outcome"},
	)

	// linkConfirmations counts link-code confirmations by outcome
	// (ok, not_found, already_used, expired, error).
	linkConfirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "link_confirmations_total",
			Help: "Total number of link-code confirmations.",
		},
		[]string{"outcome"},
	)

	// migrations counts executed identity migrations by outcome (ok, error).
	migrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrations_total",
			Help: "Total number of identity migrations executed.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(claimsTotal, linkConfirmations, migrations)
}

// ObserveClaim records one claim attempt.
func ObserveClaim(component, outcome string) {
	claimsTotal.WithLabelValues(component, outcome).Inc()
}

// ObserveLinkConfirmation records one link-code confirmation.
func ObserveLinkConfirmation(outcome string) {
	linkConfirmations.WithLabelValues(outcome).Inc()
}

// ObserveMigration records one identity migration.
func ObserveMigration(outcome string) {
	migrations.WithLabelValues(outcome).Inc()
}
