package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/spellhq/spellgate/internal/core"
)

func newWebhookHandler() *Webhook {
	processor := core.NewWebhookProcessor(nil, nil, nil, []byte("test-secret"), 5*time.Minute, zerolog.Nop())
	return NewWebhook(processor, zerolog.Nop())
}

func TestWebhookReceive_MissingSignature(t *testing.T) {
	h := newWebhookHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/webhooks/billing", `{"id":"evt_1"}`)

	h.Receive(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "malformed webhook signature")
}

func TestWebhookReceive_GarbageSignature(t *testing.T) {
	h := newWebhookHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/webhooks/billing", `{"id":"evt_1"}`)
	r.Header.Set("Spellgate-Signature", "t=123,v1=deadbeef")

	h.Receive(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
