package model

import "time"

const (
	SpellStatusDraft    = "draft"
	SpellStatusActive   = "active"
	SpellStatusDisabled = "disabled"
)

// Spell is the registry entry for an executable spell. The decision point
// never reads it; it exists so key owners can attribute check traffic and so
// lifecycle changes show up in the audit trail.
type Spell struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RuntimeID string    `json:"runtime_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
