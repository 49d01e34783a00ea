package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spellhq/spellgate/internal/api/request"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
)

// SpellRegistry handles spell lifecycle endpoints.
type SpellRegistry struct {
	svc *core.SpellService
}

func NewSpellRegistry(svc *core.SpellService) *SpellRegistry {
	return &SpellRegistry{svc: svc}
}

// Create registers a spell in draft status.
func (h *SpellRegistry) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateSpell
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	spell, err := h.svc.Create(r.Context(), req.Name, req.RuntimeID, actor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, spell)
}

// UpdateStatus moves a spell between draft, active, and disabled.
func (h *SpellRegistry) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req request.UpdateSpellStatus
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	spell, err := h.svc.UpdateStatus(r.Context(), id, req.Status, actor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, spell)
}

// List lists registered spells with cursor-based pagination.
func (h *SpellRegistry) List(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	spells, hasMore, err := h.svc.List(r.Context(), pg.Limit, pg.Cursor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var nextCursor string
	if hasMore && len(spells) > 0 {
		nextCursor = spells[len(spells)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, spells, nextCursor, hasMore)
}
