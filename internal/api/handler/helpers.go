package handler

import (
	"errors"
	"net/http"
	"strings"

	mw "github.com/spellhq/spellgate/internal/api/middleware"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
)

// writeServiceError maps core failure modes to HTTP status codes. Anything
// unmatched is a storage or infrastructure failure and surfaces as 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		response.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrInvalidSecret),
		errors.Is(err, core.ErrRefreshTokenExpired),
		errors.Is(err, core.ErrRefreshTokenReused):
		response.WriteError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrKeyRevoked),
		errors.Is(err, core.ErrScopeNotGranted):
		response.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, core.ErrScopeUnknown):
		response.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		response.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// bearerToken extracts the Authorization bearer credential, or "".
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// actor returns the request's user identity as an audit actor reference.
func actor(r *http.Request) *string {
	id := mw.UserID(r.Context())
	if id == "" {
		return nil
	}
	return &id
}
