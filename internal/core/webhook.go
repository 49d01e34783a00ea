package core

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/spellhq/spellgate/internal/metrics"
	"github.com/spellhq/spellgate/internal/model"
)

// Provider event types the processor acts on. Anything else is recorded in
// the ledger and marked processed without touching entitlements.
const (
	EventEntitlementGranted = "entitlement.granted"
	EventEntitlementRevoked = "entitlement.revoked"
)

// providerEvent is the Stripe-like wire shape of a billing event.
type providerEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		SubjectID string     `json:"subject_id"`
		ScopeRef  string     `json:"scope_ref"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	} `json:"data"`
}

// WebhookProcessor turns at-least-once webhook delivery into effectively-once
// entitlement mutation: signature check first, ledger dedup second, and the
// entitlement write, its audit row, and the processed stamp in one
// transaction.
type WebhookProcessor struct {
	db           DB
	ledger       *LedgerService
	entitlements *EntitlementService
	secret       []byte
	tolerance    time.Duration
	eventTimeout time.Duration
	logger       zerolog.Logger
}

func NewWebhookProcessor(db DB, ledger *LedgerService, entitlements *EntitlementService, secret []byte, tolerance time.Duration, logger zerolog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		db:           db,
		ledger:       ledger,
		entitlements: entitlements,
		secret:       secret,
		tolerance:    tolerance,
		eventTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// VerifySignature checks a "t=<unix>,v1=<hex>" header over "<t>.<body>".
// Rejection happens before any ledger write.
func (p *WebhookProcessor) VerifySignature(header string, body []byte, now time.Time) error {
	var ts string
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrMalformedSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > p.tolerance || age < -p.tolerance {
		return fmt.Errorf("signature timestamp outside tolerance: %w", ErrMalformedSignature)
	}

	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return fmt.Errorf("signature mismatch: %w", ErrMalformedSignature)
	}
	return nil
}

// ProcessEvent records the delivery in the ledger and, for a first delivery,
// applies the entitlement mutation. Duplicates are acknowledged without side
// effects. A failure after the ledger insert leaves the entry unprocessed
// for reconcile; it is never replayed automatically.
func (p *WebhookProcessor) ProcessEvent(ctx context.Context, body []byte) (LedgerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.eventTimeout)
	defer cancel()

	var event providerEvent
	if err := json.Unmarshal(body, &event); err != nil {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("decode provider event: %w", ErrMalformedEvent)
	}
	if event.ID == "" {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("missing event id: %w", ErrMalformedEvent)
	}
	if event.Type == EventEntitlementGranted || event.Type == EventEntitlementRevoked {
		if event.Data.SubjectID == "" || event.Data.ScopeRef == "" {
			metrics.WebhookEvents.WithLabelValues("rejected").Inc()
			return "", fmt.Errorf("missing entitlement subject or scope: %w", ErrMalformedEvent)
		}
	}

	payloadHash := sha256.Sum256(body)
	status, err := p.ledger.Record(ctx, event.ID, hex.EncodeToString(payloadHash[:]))
	if err != nil {
		return "", err
	}
	if status == LedgerDuplicate {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		p.logger.Info().Str("event_id", event.ID).Msg("duplicate webhook delivery")
		return LedgerDuplicate, nil
	}

	if err := p.handleEvent(ctx, event); err != nil {
		metrics.WebhookEvents.WithLabelValues("failed").Inc()
		return "", err
	}

	metrics.WebhookEvents.WithLabelValues("processed").Inc()
	return LedgerProcessed, nil
}

func (p *WebhookProcessor) handleEvent(ctx context.Context, event providerEvent) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin webhook tx: %w", err)
	}
	defer tx.Rollback(ctx)

	occurredAt := time.Unix(event.Created, 0)
	if event.Created == 0 {
		occurredAt = time.Now()
	}

	outcome := "ignored"
	switch event.Type {
	case EventEntitlementGranted:
		if _, err := p.entitlements.grantOn(ctx, tx, GrantParams{
			SubjectID:  event.Data.SubjectID,
			ScopeRef:   event.Data.ScopeRef,
			Source:     model.EntitlementSourceWebhook,
			ExpiresAt:  event.Data.ExpiresAt,
			OccurredAt: occurredAt,
		}); err != nil {
			return err
		}
		outcome = "granted"
	case EventEntitlementRevoked:
		if _, err := p.entitlements.revokeOn(ctx, tx, event.Data.SubjectID, event.Data.ScopeRef, event.Type, model.EntitlementSourceWebhook, occurredAt, nil); err != nil {
			return err
		}
		outcome = "revoked"
	default:
		p.logger.Info().Str("event_id", event.ID).Str("type", event.Type).Msg("ignoring unhandled event type")
	}

	meta := map[string]string{"event_type": event.Type, "outcome": outcome}
	if _, err := insertAuditEvent(ctx, tx, model.AuditStripeEventProcessed, nil, &event.ID, meta); err != nil {
		return err
	}

	if err := p.ledger.MarkProcessed(ctx, tx, event.ID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit webhook tx: %w", err)
	}
	return nil
}
