package handler

import (
	"net/http"

	"github.com/spellhq/spellgate/internal/api/request"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
)

// Scope handles the scope registry endpoints.
type Scope struct {
	svc *core.ScopeService
}

func NewScope(svc *core.ScopeService) *Scope {
	return &Scope{svc: svc}
}

// Create registers a scope identifier.
func (h *Scope) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateScope
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope, err := h.svc.Create(r.Context(), req.Name, req.Description, actor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, scope)
}

// List returns all registered scopes.
func (h *Scope) List(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.svc.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"scopes": scopes})
}
