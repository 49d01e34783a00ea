package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/spellhq/spellgate/internal/api/response"
	"github.com/spellhq/spellgate/internal/core"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Webhook handles the billing provider's event intake.
type Webhook struct {
	processor *core.WebhookProcessor
	logger    zerolog.Logger
}

func NewWebhook(processor *core.WebhookProcessor, logger zerolog.Logger) *Webhook {
	return &Webhook{processor: processor, logger: logger}
}

// Receive verifies the delivery signature and processes the event. Both
// first deliveries and duplicates get a 200 so the provider never retries a
// duplicate; processing failures get a 5xx and the ledger entry stays
// unprocessed for reconcile.
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, "read body")
		return
	}

	sig := r.Header.Get("Spellgate-Signature")
	if err := h.processor.VerifySignature(sig, body, time.Now()); err != nil {
		response.WriteError(w, http.StatusBadRequest, core.ErrMalformedSignature.Error())
		return
	}

	status, err := h.processor.ProcessEvent(r.Context(), body)
	if err != nil {
		if errors.Is(err, core.ErrMalformedEvent) {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("webhook processing failed")
		response.WriteError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
