package request

import "time"

// ChangeEntitlement holds the request body for a manual entitlement grant
// or revoke.
type ChangeEntitlement struct {
	SubjectID string     `json:"subject_id" validate:"required"`
	ScopeRef  string     `json:"scope_ref" validate:"required,scope"`
	Action    string     `json:"action" validate:"required,oneof=grant revoke"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason" validate:"max=1024"`
}

// Reconcile holds the request body for an entitlement reconcile run.
type Reconcile struct {
	SubjectID string `json:"subject_id"`
}
