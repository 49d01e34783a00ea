package model

import "time"

// TokenPair is the result of token issuance or refresh. The access token is
// a signed JWT; the refresh token is an opaque single-use secret.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RefreshToken is the stored form of a refresh token. Tokens in the same
// rotation chain share a family ID so that reuse of a consumed token can
// revoke every descendant at once.
type RefreshToken struct {
	ID        string     `json:"id"`
	FamilyID  string     `json:"family_id"`
	KeyID     string     `json:"key_id"`
	TokenHash string     `json:"-"`
	Scopes    []string   `json:"scopes"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
