package handler

import (
	"net/http"
	"time"

	"github.com/spellhq/spellgate/internal/api/request"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
	"github.com/spellhq/spellgate/internal/model"
)

// Entitlement handles manual entitlement administration and reconcile.
type Entitlement struct {
	svc *core.EntitlementService
}

func NewEntitlement(svc *core.EntitlementService) *Entitlement {
	return &Entitlement{svc: svc}
}

// Change grants or revokes an entitlement with source=manual.
func (h *Entitlement) Change(w http.ResponseWriter, r *http.Request) {
	var req request.ChangeEntitlement
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch req.Action {
	case "grant":
		err = h.svc.Grant(r.Context(), core.GrantParams{
			SubjectID:  req.SubjectID,
			ScopeRef:   req.ScopeRef,
			Source:     model.EntitlementSourceManual,
			ExpiresAt:  req.ExpiresAt,
			OccurredAt: time.Now(),
			ActorID:    actor(r),
		})
	case "revoke":
		err = h.svc.Revoke(r.Context(), req.SubjectID, req.ScopeRef, req.Reason, model.EntitlementSourceManual, time.Now(), actor(r))
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Reconcile re-derives entitlement state from the billing provider.
func (h *Entitlement) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req request.Reconcile
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.svc.Reconcile(r.Context(), req.SubjectID, actor(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
