package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckDecisions counts scope-check outcomes by result (allowed/denied).
	CheckDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spell_check_decisions_total",
			Help: "Total scope-check decisions by result",
		},
		[]string{"result"},
	)

	// InvalidTokens counts checks rejected before scope evaluation. Kept as
	// a bare counter so malformed-token floods never reach the audit trail.
	InvalidTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "spell_check_invalid_token_total",
			Help: "Total scope-check requests with an invalid or expired access token",
		},
	)

	// WebhookEvents counts webhook deliveries by ledger outcome.
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total webhook deliveries by outcome (processed/duplicate/rejected)",
		},
		[]string{"status"},
	)
)
