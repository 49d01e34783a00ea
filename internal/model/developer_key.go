package model

import "time"

const (
	KeyStatusActive  = "active"
	KeyStatusRevoked = "revoked"
)

// DeveloperKey is a long-lived API credential owned by a single user. Only
// the SHA-256 digest of the secret is stored; the plaintext is returned once
// at creation or rotation and never again.
type DeveloperKey struct {
	KeyID        string     `json:"key_id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	SecretHash   string     `json:"-"`
	SecretPrefix string     `json:"secret_prefix,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	RotatedAt    *time.Time `json:"rotated_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}
