package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpellRegistryCreate_InvalidJSON(t *testing.T) {
	h := NewSpellRegistry(nil)
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/spells", "{bad")
	r = withIdentity(r, "user-1")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpellRegistryCreate_MissingRuntime(t *testing.T) {
	h := NewSpellRegistry(nil)
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/spells", map[string]any{"name": "fireball"})
	r = withIdentity(r, "user-1")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestSpellRegistryUpdateStatus_EmptyID(t *testing.T) {
	h := NewSpellRegistry(nil)
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPut, "/spells//status", map[string]any{"status": "active"})
	r = withChiURLParam(r, "id", "")
	r = withIdentity(r, "user-1")

	h.UpdateStatus(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "missing required ID")
}

func TestSpellRegistryUpdateStatus_UnknownStatus(t *testing.T) {
	h := NewSpellRegistry(nil)
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPut, "/spells/spell-1/status", map[string]any{"status": "archived"})
	r = withChiURLParam(r, "id", "spell-1")
	r = withIdentity(r, "user-1")

	h.UpdateStatus(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
