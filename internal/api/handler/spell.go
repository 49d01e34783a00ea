package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/spellhq/spellgate/internal/api/request"
	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
)

// Spell handles the decision point and its read-only observability
// endpoints (audit trail, ledger).
type Spell struct {
	decision *core.DecisionService
	audit    *core.AuditService
	ledger   *core.LedgerService
	logger   zerolog.Logger
}

func NewSpell(decision *core.DecisionService, audit *core.AuditService, ledger *core.LedgerService, logger zerolog.Logger) *Spell {
	return &Spell{decision: decision, audit: audit, ledger: ledger, logger: logger}
}

// Check answers allow/deny for one execution. The response is always a
// boolean: infrastructure trouble fails closed as allowed=false, but is
// logged distinctly so it is never mistaken for a legitimate denial.
func (h *Spell) Check(w http.ResponseWriter, r *http.Request) {
	accessToken := bearerToken(r)
	if accessToken == "" {
		response.WriteError(w, http.StatusUnauthorized, "missing access token")
		return
	}

	var req request.SpellCheck
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowed, err := h.decision.Check(r.Context(), accessToken, req.UserIdentifier, req.RequestedScope)
	if err != nil {
		h.logger.Error().Err(err).
			Str("spell_id", req.SpellID).
			Str("runtime_id", req.RuntimeID).
			Str("requested_scope", req.RequestedScope).
			Msg("scope check failed closed")
	}

	response.WriteJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

// Audit lists recent audit events, newest first.
func (h *Spell) Audit(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	events, err := h.audit.List(r.Context(), core.AuditFilter{
		EventNamePrefix: r.URL.Query().Get("event_name_prefix"),
		ActorID:         r.URL.Query().Get("actor_id"),
		TargetID:        r.URL.Query().Get("target_id"),
		Limit:           pg.Limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"audit": events})
}

// Ledger lists recent webhook ledger entries, newest first.
func (h *Spell) Ledger(w http.ResponseWriter, r *http.Request) {
	pg := request.ParsePagination(r)

	entries, err := h.ledger.List(r.Context(), pg.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
