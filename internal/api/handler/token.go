package handler

import (
	"net/http"

	"github.com/spellhq/spellgate/internal/api/request"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
)

// Token handles token issuance and refresh.
type Token struct {
	svc *core.TokenService
}

func NewToken(svc *core.TokenService) *Token {
	return &Token{svc: svc}
}

// Issue exchanges a developer key secret (Authorization: Bearer) for an
// access/refresh token pair limited to the requested scopes.
func (h *Token) Issue(w http.ResponseWriter, r *http.Request) {
	secret := bearerToken(r)
	if secret == "" {
		response.WriteError(w, http.StatusUnauthorized, "missing key secret")
		return
	}

	var req request.IssueToken
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.svc.Issue(r.Context(), secret, req.Scopes)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, pair)
}

// Refresh rotates a refresh token into a new pair. The consumed token is
// single-use; replaying it revokes its whole family.
func (h *Token) Refresh(w http.ResponseWriter, r *http.Request) {
	var req request.RefreshToken
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, pair)
}
