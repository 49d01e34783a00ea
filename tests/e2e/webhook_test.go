package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func requireWebhookSecret(t *testing.T) {
	t.Helper()
	if webhookSecret == "" {
		t.Skip("SPELLGATE_WEBHOOK_SECRET not set")
	}
}

func billingEvent(t *testing.T, eventType, subjectID, scopeRef string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":      fmt.Sprintf("evt_e2e_%d", time.Now().UnixNano()),
		"type":    eventType,
		"created": time.Now().Unix(),
		"data": map[string]any{
			"subject_id": subjectID,
			"scope_ref":  scopeRef,
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

// TestWebhookGrant_FlipsDecision delivers a signed entitlement.granted event
// and verifies it shows up in the decision point, the ledger, and that a
// replayed delivery is deduplicated without a second effect.
func TestWebhookGrant_FlipsDecision(t *testing.T) {
	requireWebhookSecret(t)

	scope := uniqueScope("cast")
	subjectID := testUserID
	_, keySecret := createKeyWithScope(t, scope)
	access, _ := issueToken(t, keySecret, []string{scope})

	payload := billingEvent(t, "entitlement.granted", subjectID, scope)
	sig := signWebhook(payload, time.Now())

	resp, body := postWebhook(t, payload, sig)
	expectStatus(t, resp, body, http.StatusOK)
	if parseJSON(t, body)["status"] != "processed" {
		t.Fatalf("first delivery status %s, want processed", body)
	}

	if !checkAllowed(t, access, subjectID, scope) {
		t.Fatal("check denied after webhook grant")
	}

	// At-least-once delivery: the retry is acknowledged but short-circuited.
	resp, body = postWebhook(t, payload, sig)
	expectStatus(t, resp, body, http.StatusOK)
	if parseJSON(t, body)["status"] != "duplicate" {
		t.Fatalf("replayed delivery status %s, want duplicate", body)
	}

	resp, body = httpGet(t, "/api/v1/spell/ledger?limit=200", "")
	expectStatus(t, resp, body, http.StatusOK)
	entries := parseJSON(t, body)["entries"].([]any)
	if len(entries) == 0 {
		t.Fatal("ledger is empty after webhook delivery")
	}
}

func TestWebhookRevoke_FlipsDecisionBack(t *testing.T) {
	requireWebhookSecret(t)

	scope := uniqueScope("cast")
	subjectID := testUserID
	_, keySecret := createKeyWithScope(t, scope)
	access, _ := issueToken(t, keySecret, []string{scope})

	grant := billingEvent(t, "entitlement.granted", subjectID, scope)
	resp, body := postWebhook(t, grant, signWebhook(grant, time.Now()))
	expectStatus(t, resp, body, http.StatusOK)
	if !checkAllowed(t, access, subjectID, scope) {
		t.Fatal("check denied after grant event")
	}

	revoke := billingEvent(t, "entitlement.revoked", subjectID, scope)
	resp, body = postWebhook(t, revoke, signWebhook(revoke, time.Now()))
	expectStatus(t, resp, body, http.StatusOK)
	if checkAllowed(t, access, subjectID, scope) {
		t.Fatal("check still allowed after revoke event")
	}
}

func TestWebhookSignature_Rejections(t *testing.T) {
	requireWebhookSecret(t)

	payload := billingEvent(t, "entitlement.granted", testUserID, uniqueScope("cast"))

	// Tampered body.
	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] ^= 0xff
	resp, body := postWebhook(t, tampered, signWebhook(payload, time.Now()))
	expectStatus(t, resp, body, http.StatusBadRequest)

	// Stale timestamp outside the tolerance window.
	resp, body = postWebhook(t, payload, signWebhook(payload, time.Now().Add(-time.Hour)))
	expectStatus(t, resp, body, http.StatusBadRequest)

	// Missing header.
	resp, body = postWebhook(t, payload, "")
	expectStatus(t, resp, body, http.StatusBadRequest)
}
