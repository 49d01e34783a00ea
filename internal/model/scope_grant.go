package model

import "time"

const (
	ConditionFree = "free"
	ConditionPaid = "paid"
)

// ScopeGrant attaches an opaque scope string to a developer key. A key's
// effective scopes are its grants with no revoked_at.
type ScopeGrant struct {
	KeyID         string     `json:"key_id"`
	Scope         string     `json:"scope"`
	ConditionType string     `json:"condition_type"`
	GrantedAt     time.Time  `json:"granted_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

// Scope is a registry entry for a scope identifier. The core assigns no
// semantics to the string beyond its existence here.
type Scope struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
