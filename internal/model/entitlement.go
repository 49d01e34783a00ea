package model

import "time"

const (
	EntitlementActive  = "active"
	EntitlementExpired = "expired"
	EntitlementRevoked = "revoked"
)

const (
	EntitlementSourceWebhook   = "webhook"
	EntitlementSourceManual    = "manual"
	EntitlementSourceReconcile = "reconcile"
)

// Entitlement records that a subject currently holds a scope or product
// reference. Exactly one row exists per (subject_id, scope_ref); grants and
// revokes flip its status in place, so the row's occurred_at always carries
// the timestamp of the latest event applied to the pair.
type Entitlement struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	ScopeRef   string     `json:"scope_ref"`
	Status     string     `json:"status"`
	Source     string     `json:"source"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}
