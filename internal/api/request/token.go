package request

// IssueToken holds the request body for exchanging a developer key secret
// for a token pair. An empty scope list means all granted scopes.
type IssueToken struct {
	Scopes []string `json:"scopes" validate:"omitempty,dive,scope"`
}

// RefreshToken holds the request body for rotating a refresh token.
type RefreshToken struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}
