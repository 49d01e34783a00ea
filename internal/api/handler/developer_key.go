package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/spellhq/spellgate/internal/api/middleware"
	"github.com/spellhq/spellgate/internal/api/request"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
	"github.com/spellhq/spellgate/internal/model"
)

// DeveloperKey handles developer key management endpoints.
type DeveloperKey struct {
	svc *core.DeveloperKeyService
}

func NewDeveloperKey(svc *core.DeveloperKeyService) *DeveloperKey {
	return &DeveloperKey{svc: svc}
}

// requireOwnedKey loads the key and verifies the caller owns it. Writes the
// error response and returns nil on failure.
func (h *DeveloperKey) requireOwnedKey(w http.ResponseWriter, r *http.Request) *model.DeveloperKey {
	keyID, err := request.RequireID(chi.URLParam(r, "keyId"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return nil
	}

	key, err := h.svc.GetByID(r.Context(), keyID)
	if err != nil {
		writeServiceError(w, err)
		return nil
	}
	if key.OwnerID != mw.UserID(r.Context()) {
		response.WriteError(w, http.StatusForbidden, "not the key owner")
		return nil
	}
	return key
}

// Create generates a new developer key. The secret is returned once in the
// response and never again.
func (h *DeveloperKey) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateDeveloperKey
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := mw.UserID(r.Context())
	key, secret, err := h.svc.Create(r.Context(), ownerID, req.Name, actor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"key": map[string]any{
			"key_id":     key.KeyID,
			"key_secret": secret,
			"name":       key.Name,
			"status":     key.Status,
			"created_at": key.CreatedAt,
		},
	})
}

// List lists the caller's developer keys with cursor-based pagination.
func (h *DeveloperKey) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	keys, hasMore, err := h.svc.List(r.Context(), mw.UserID(r.Context()), pg.Limit, pg.Cursor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var nextCursor string
	if hasMore && len(keys) > 0 {
		nextCursor = keys[len(keys)-1].KeyID
	}
	response.WritePaginated(w, http.StatusOK, keys, nextCursor, hasMore)
}

// Get retrieves one of the caller's developer keys.
func (h *DeveloperKey) Get(w http.ResponseWriter, r *http.Request) {
	key := h.requireOwnedKey(w, r)
	if key == nil {
		return
	}
	response.WriteJSON(w, http.StatusOK, key)
}

// Rotate replaces the key secret. The new secret is returned once.
func (h *DeveloperKey) Rotate(w http.ResponseWriter, r *http.Request) {
	key := h.requireOwnedKey(w, r)
	if key == nil {
		return
	}

	secret, err := h.svc.Rotate(r.Context(), key.KeyID, actor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"key_secret": secret})
}

// Revoke permanently disables the key.
func (h *DeveloperKey) Revoke(w http.ResponseWriter, r *http.Request) {
	key := h.requireOwnedKey(w, r)
	if key == nil {
		return
	}

	if err := h.svc.Revoke(r.Context(), key.KeyID, actor(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ChangeScope grants or revokes a scope on the key.
func (h *DeveloperKey) ChangeScope(w http.ResponseWriter, r *http.Request) {
	key := h.requireOwnedKey(w, r)
	if key == nil {
		return
	}

	var req request.ChangeScopeGrant
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch req.Action {
	case "grant":
		conditionType := req.ConditionType
		if conditionType == "" {
			conditionType = model.ConditionFree
		}
		err = h.svc.GrantScope(r.Context(), key.KeyID, req.Scope, conditionType, actor(r))
	case "revoke":
		err = h.svc.RevokeScope(r.Context(), key.KeyID, req.Scope, actor(r))
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ListScopes returns all scope grant rows for the key.
func (h *DeveloperKey) ListScopes(w http.ResponseWriter, r *http.Request) {
	key := h.requireOwnedKey(w, r)
	if key == nil {
		return
	}

	grants, err := h.svc.ListScopeGrants(r.Context(), key.KeyID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"scopes": grants})
}
