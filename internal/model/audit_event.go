package model

import "time"

// Audit event taxonomy. Every state-changing operation writes exactly one of
// these before its transaction is considered committed.
const (
	AuditEntitlementGranted   = "entitlement_granted"
	AuditEntitlementRevoked   = "entitlement_revoked"
	AuditSpellCreated         = "spell_created"
	AuditSpellStatusUpdated   = "spell_status_updated"
	AuditScopeCreated         = "scope_created"
	AuditStripeEventProcessed = "stripe_event_processed"
	AuditReconcileExecuted    = "reconcile_executed"
	AuditDeveloperKeyCreated  = "developer_key_created"
	AuditDeveloperKeyRotated  = "developer_key_rotated"
	AuditDeveloperKeyRevoked  = "developer_key_revoked"
	AuditScopeGrantChanged    = "scope_grant_changed"
	AuditTokenIssued          = "token_issued"
	AuditTokenRefreshed       = "token_refreshed"
	AuditTokenFamilyRevoked   = "token_family_revoked"
)

// AuditEvent is an append-only record of a state-changing action. Metadata
// is a flat string map with documented keys per event name; no internal
// object shapes leak into it.
type AuditEvent struct {
	ID        string            `json:"id"`
	EventName string            `json:"event_name"`
	ActorID   *string           `json:"actor_id,omitempty"`
	TargetID  *string           `json:"target_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
