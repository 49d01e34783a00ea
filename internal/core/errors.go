package core

import "errors"

// Domain failure modes. Handlers match these with errors.Is to pick 4xx
// status codes; anything else is treated as a storage failure and surfaced
// as 5xx rather than absorbed.
var (
	ErrInvalidSecret       = errors.New("invalid developer key secret")
	ErrKeyRevoked          = errors.New("developer key revoked")
	ErrScopeNotGranted     = errors.New("scope not granted to developer key")
	ErrScopeUnknown        = errors.New("scope not registered")
	ErrRefreshTokenExpired = errors.New("refresh token expired or unknown")
	ErrRefreshTokenReused  = errors.New("refresh token already used")
	ErrMalformedSignature  = errors.New("malformed webhook signature")
	ErrMalformedEvent      = errors.New("malformed webhook event")
	ErrNotFound            = errors.New("not found")
)
