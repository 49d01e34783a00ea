package request

// CreateDeveloperKey holds the request body for creating a developer key.
type CreateDeveloperKey struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

// ChangeScopeGrant holds the request body for granting or revoking a scope
// on a developer key.
type ChangeScopeGrant struct {
	Scope         string `json:"scope" validate:"required,scope"`
	Action        string `json:"action" validate:"required,oneof=grant revoke"`
	ConditionType string `json:"condition_type" validate:"omitempty,oneof=free paid"`
}
