package core

import (
	"context"
	"fmt"
	"time"

	"github.com/spellhq/spellgate/internal/model"
	"github.com/spellhq/spellgate/internal/platform"
)

// SubscriptionState is one entitlement a subject holds according to the
// billing provider, used by reconcile as the authoritative source of truth.
type SubscriptionState struct {
	ScopeRef  string
	ExpiresAt *time.Time
}

// SubscriptionSource re-queries the billing provider for a subject's current
// subscription state. Reconcile uses it to repair entitlements when a
// webhook was missed.
type SubscriptionSource interface {
	Snapshot(ctx context.Context, subjectID string) ([]SubscriptionState, error)
}

// EntitlementService owns all mutation of entitlement rows. No other
// component writes them directly.
type EntitlementService struct {
	db     DB
	source SubscriptionSource
}

func NewEntitlementService(db DB, source SubscriptionSource) *EntitlementService {
	return &EntitlementService{db: db, source: source}
}

// GrantParams describes one entitlement grant. OccurredAt is the provider's
// event timestamp; writes carrying an older timestamp than the stored row
// are discarded so out-of-order webhook deliveries cannot regress state.
type GrantParams struct {
	SubjectID  string
	ScopeRef   string
	Source     string
	ExpiresAt  *time.Time
	OccurredAt time.Time
	ActorID    *string
}

// Grant upserts an active entitlement and audits the change atomically.
func (s *EntitlementService) Grant(ctx context.Context, p GrantParams) error {
	_, err := s.grantTx(ctx, p)
	return err
}

// grantTx runs grantOn in its own transaction. Returns whether the write
// took effect.
func (s *EntitlementService) grantTx(ctx context.Context, p GrantParams) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin grant tx: %w", err)
	}
	defer tx.Rollback(ctx)

	changed, err := s.grantOn(ctx, tx, p)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit grant tx: %w", err)
	}
	return changed, nil
}

// grantOn performs the upsert on the caller's transaction. Returns false
// when the write was discarded as stale or changed nothing.
//
// There is one row per (subject, scope) whatever its status, so the
// occurred_at guard also rejects a stale grant arriving after a newer
// revoke; reactivation clears revoked_at in place.
func (s *EntitlementService) grantOn(ctx context.Context, db DBTX, p GrantParams) (bool, error) {
	if p.OccurredAt.IsZero() {
		p.OccurredAt = time.Now()
	}

	tag, err := db.Exec(ctx,
		`INSERT INTO entitlements (id, subject_id, scope_ref, status, source, granted_at, expires_at, occurred_at)
		 VALUES ($1, $2, $3, 'active', $4, now(), $5, $6)
		 ON CONFLICT (subject_id, scope_ref)
		 DO UPDATE SET status = 'active', source = EXCLUDED.source, granted_at = now(),
		               expires_at = EXCLUDED.expires_at, occurred_at = EXCLUDED.occurred_at, revoked_at = NULL
		 WHERE entitlements.occurred_at <= EXCLUDED.occurred_at`,
		platform.NewID(), p.SubjectID, p.ScopeRef, p.Source, p.ExpiresAt, p.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("upsert entitlement %s/%s: %w", p.SubjectID, p.ScopeRef, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	meta := map[string]string{"scope_ref": p.ScopeRef, "source": p.Source}
	if p.ExpiresAt != nil {
		meta["expires_at"] = p.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if _, err := insertAuditEvent(ctx, db, model.AuditEntitlementGranted, p.ActorID, &p.SubjectID, meta); err != nil {
		return false, err
	}
	return true, nil
}

// Revoke marks the active entitlement revoked. Revoking an absent or
// already-revoked entitlement is a no-op, not an error.
func (s *EntitlementService) Revoke(ctx context.Context, subjectID, scopeRef, reason, source string, occurredAt time.Time, actorID *string) error {
	_, err := s.revokeTx(ctx, subjectID, scopeRef, reason, source, occurredAt, actorID)
	return err
}

// revokeTx runs revokeOn in its own transaction. Returns whether the write
// took effect.
func (s *EntitlementService) revokeTx(ctx context.Context, subjectID, scopeRef, reason, source string, occurredAt time.Time, actorID *string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin revoke tx: %w", err)
	}
	defer tx.Rollback(ctx)

	changed, err := s.revokeOn(ctx, tx, subjectID, scopeRef, reason, source, occurredAt, actorID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit revoke tx: %w", err)
	}
	return changed, nil
}

func (s *EntitlementService) revokeOn(ctx context.Context, db DBTX, subjectID, scopeRef, reason, source string, occurredAt time.Time, actorID *string) (bool, error) {
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	tag, err := db.Exec(ctx,
		`UPDATE entitlements SET status = 'revoked', revoked_at = now(), occurred_at = $4
		 WHERE subject_id = $1 AND scope_ref = $2 AND status = 'active' AND occurred_at <= $3`,
		subjectID, scopeRef, occurredAt, occurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("revoke entitlement %s/%s: %w", subjectID, scopeRef, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	meta := map[string]string{"scope_ref": scopeRef, "source": source}
	if reason != "" {
		meta["reason"] = reason
	}
	if _, err := insertAuditEvent(ctx, db, model.AuditEntitlementRevoked, actorID, &subjectID, meta); err != nil {
		return false, err
	}
	return true, nil
}

// IsActive reports whether the subject currently holds the scope. Pure read
// on the scope-check hot path; a single indexed lookup.
func (s *EntitlementService) IsActive(ctx context.Context, subjectID, scopeRef string) (bool, error) {
	var active bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM entitlements
			WHERE subject_id = $1 AND scope_ref = $2 AND status = 'active'
			  AND (expires_at IS NULL OR expires_at > now())
		)`, subjectID, scopeRef,
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("check entitlement %s/%s: %w", subjectID, scopeRef, err)
	}
	return active, nil
}

// ListBySubject returns a subject's entitlement rows, newest grant first.
func (s *EntitlementService) ListBySubject(ctx context.Context, subjectID string) ([]model.Entitlement, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, subject_id, scope_ref, status, source, granted_at, expires_at, revoked_at, occurred_at
		 FROM entitlements WHERE subject_id = $1 ORDER BY granted_at DESC`, subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list entitlements for %s: %w", subjectID, err)
	}
	defer rows.Close()

	var ents []model.Entitlement
	for rows.Next() {
		var e model.Entitlement
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.ScopeRef, &e.Status, &e.Source, &e.GrantedAt, &e.ExpiresAt, &e.RevokedAt, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		ents = append(ents, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entitlements: %w", err)
	}

	return ents, nil
}

// Reconcile re-derives entitlement state from the billing provider for one
// subject, or for every subject with entitlement history when subjectID is
// empty. Each individual change is audited with source=reconcile; the run
// itself is audited as reconcile_executed.
func (s *EntitlementService) Reconcile(ctx context.Context, subjectID string, actorID *string) (int, error) {
	subjects := []string{subjectID}
	if subjectID == "" {
		var err error
		subjects, err = s.knownSubjects(ctx)
		if err != nil {
			return 0, err
		}
	}

	updated := 0
	for _, subject := range subjects {
		n, err := s.reconcileSubject(ctx, subject, actorID)
		if err != nil {
			return updated, err
		}
		updated += n
	}

	meta := map[string]string{"updated": fmt.Sprintf("%d", updated)}
	if subjectID != "" {
		meta["subject_id"] = subjectID
	}
	if _, err := insertAuditEvent(ctx, s.db, model.AuditReconcileExecuted, actorID, nil, meta); err != nil {
		return updated, err
	}

	return updated, nil
}

func (s *EntitlementService) reconcileSubject(ctx context.Context, subjectID string, actorID *string) (int, error) {
	if s.source == nil {
		return 0, fmt.Errorf("no subscription source configured")
	}
	states, err := s.source.Snapshot(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("snapshot subscriptions for %s: %w", subjectID, err)
	}

	desired := make(map[string]*time.Time, len(states))
	for _, st := range states {
		desired[st.ScopeRef] = st.ExpiresAt
	}

	current, err := s.ListBySubject(ctx, subjectID)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	updated := 0
	active := make(map[string]bool)
	for _, ent := range current {
		if ent.Status != model.EntitlementActive {
			continue
		}
		if ent.ExpiresAt != nil && ent.ExpiresAt.Before(now) {
			// Lapsed but never transitioned; the provider no longer vouches
			// for it either way, so expire rather than revoke.
			changed, err := s.expireTx(ctx, ent, actorID)
			if err != nil {
				return updated, err
			}
			if changed {
				updated++
			}
			continue
		}
		active[ent.ScopeRef] = true
		if _, ok := desired[ent.ScopeRef]; !ok {
			changed, err := s.revokeTx(ctx, subjectID, ent.ScopeRef, "not present at provider", model.EntitlementSourceReconcile, now, actorID)
			if err != nil {
				return updated, err
			}
			if changed {
				updated++
			}
		}
	}

	for scopeRef, expiresAt := range desired {
		if active[scopeRef] {
			continue
		}
		changed, err := s.grantTx(ctx, GrantParams{
			SubjectID:  subjectID,
			ScopeRef:   scopeRef,
			Source:     model.EntitlementSourceReconcile,
			ExpiresAt:  expiresAt,
			OccurredAt: now,
			ActorID:    actorID,
		})
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
		}
	}

	return updated, nil
}

// expireTx transitions a lapsed row to expired, with its audit record in
// the same transaction.
func (s *EntitlementService) expireTx(ctx context.Context, ent model.Entitlement, actorID *string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin expire tx: %w", err)
	}
	defer tx.Rollback(ctx)

	changed, err := s.expireOn(ctx, tx, ent, actorID)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit expire tx: %w", err)
	}
	return changed, nil
}

func (s *EntitlementService) expireOn(ctx context.Context, db DBTX, ent model.Entitlement, actorID *string) (bool, error) {
	tag, err := db.Exec(ctx,
		`UPDATE entitlements SET status = 'expired' WHERE id = $1 AND status = 'active'`, ent.ID,
	)
	if err != nil {
		return false, fmt.Errorf("expire entitlement %s: %w", ent.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	meta := map[string]string{"scope_ref": ent.ScopeRef, "source": model.EntitlementSourceReconcile, "reason": "expired"}
	if _, err := insertAuditEvent(ctx, db, model.AuditEntitlementRevoked, actorID, &ent.SubjectID, meta); err != nil {
		return false, err
	}
	return true, nil
}

func (s *EntitlementService) knownSubjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT subject_id FROM entitlements`)
	if err != nil {
		return nil, fmt.Errorf("list entitlement subjects: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	return subjects, nil
}
