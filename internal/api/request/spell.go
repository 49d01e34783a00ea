package request

// SpellCheck holds the request body for a scope-check decision.
type SpellCheck struct {
	SpellID        string `json:"spell_id"`
	RuntimeID      string `json:"runtime_id"`
	UserIdentifier string `json:"user_identifier" validate:"required"`
	RequestedScope string `json:"requested_scope" validate:"required,scope"`
}

// CreateSpell holds the request body for registering a spell.
type CreateSpell struct {
	Name      string `json:"name" validate:"required,min=1,max=255"`
	RuntimeID string `json:"runtime_id" validate:"required"`
}

// UpdateSpellStatus holds the request body for a spell status change.
type UpdateSpellStatus struct {
	Status string `json:"status" validate:"required,oneof=draft active disabled"`
}
