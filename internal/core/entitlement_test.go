package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spellhq/spellgate/internal/model"
)

// fakeSource is a canned SubscriptionSource for reconcile tests.
type fakeSource struct {
	states []SubscriptionState
	err    error
}

func (f *fakeSource) Snapshot(ctx context.Context, subjectID string) ([]SubscriptionState, error) {
	return f.states, f.err
}

// ---------- Grant ----------

func TestEntitlementService_Grant_Success(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	tx := db.expectTx(ctx)
	db.On("Exec", ctx, sqlContains("INSERT INTO entitlements"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)
	db.On("Exec", ctx, sqlContains("INSERT INTO audit_events"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := svc.Grant(ctx, GrantParams{
		SubjectID:  "subj-1",
		ScopeRef:   "cast.fire",
		Source:     model.EntitlementSourceManual,
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

func TestEntitlementService_Grant_StaleWriteDiscarded(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	tx := db.expectTx(ctx)
	// Conditional upsert matched nothing: the stored row is newer. No audit
	// row is written for a no-op.
	db.On("Exec", ctx, sqlContains("INSERT INTO entitlements"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := svc.Grant(ctx, GrantParams{
		SubjectID:  "subj-1",
		ScopeRef:   "cast.fire",
		Source:     model.EntitlementSourceWebhook,
		OccurredAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

func TestEntitlementService_Grant_StaleAfterRevokeDiscarded(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	tx := db.expectTx(ctx)
	// The pair's single row was revoked by a newer event; the upsert conflicts
	// on (subject_id, scope_ref) and the occurred_at guard rejects the older
	// grant, so the entitlement stays revoked and nothing is audited.
	db.On("Exec", ctx, sqlContains("ON CONFLICT (subject_id, scope_ref)"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := svc.Grant(ctx, GrantParams{
		SubjectID:  "subj-1",
		ScopeRef:   "cast.fire",
		Source:     model.EntitlementSourceWebhook,
		OccurredAt: time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

// ---------- Revoke ----------

func TestEntitlementService_Revoke_Idempotent(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	tx := db.expectTx(ctx)
	db.On("Exec", ctx, sqlContains("UPDATE entitlements"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := svc.Revoke(ctx, "subj-1", "cast.fire", "", model.EntitlementSourceManual, time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

func TestEntitlementService_Revoke_AuditsChange(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	tx := db.expectTx(ctx)
	db.On("Exec", ctx, sqlContains("UPDATE entitlements"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("Exec", ctx, sqlContains("INSERT INTO audit_events"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := svc.Revoke(ctx, "subj-1", "cast.fire", "subscription ended", model.EntitlementSourceWebhook, time.Now(), nil)
	require.NoError(t, err)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

// ---------- IsActive ----------

func TestEntitlementService_IsActive(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = true
		return nil
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	active, err := svc.IsActive(ctx, "subj-1", "cast.fire")
	require.NoError(t, err)
	assert.True(t, active)
	db.AssertExpectations(t)
}

// ---------- Reconcile ----------

func TestEntitlementService_Reconcile_RepairsDrift(t *testing.T) {
	db := &mockDB{}
	// Provider says the subject holds cast.fire; the store says cast.ice.
	svc := NewEntitlementService(db, &fakeSource{states: []SubscriptionState{{ScopeRef: "cast.fire"}}})
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	rows := newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "ent-1"
		*(dest[1].(*string)) = "subj-1"
		*(dest[2].(*string)) = "cast.ice"
		*(dest[3].(*string)) = model.EntitlementActive
		*(dest[4].(*string)) = model.EntitlementSourceWebhook
		*(dest[5].(*time.Time)) = now
		*(dest[6].(**time.Time)) = nil
		*(dest[7].(**time.Time)) = nil
		*(dest[8].(*time.Time)) = now
		return nil
	})
	// Each repair runs in its own transaction so the entitlement write and
	// its audit row commit together.
	tx := db.expectTx(ctx)
	db.On("Query", ctx, sqlContains("FROM entitlements"), mock.Anything).Return(rows, nil)
	db.On("Exec", ctx, sqlContains("UPDATE entitlements SET status = 'revoked'"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("Exec", ctx, sqlContains("INSERT INTO entitlements"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)
	db.On("Exec", ctx, sqlContains("INSERT INTO audit_events"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	updated, err := svc.Reconcile(ctx, "subj-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

func TestEntitlementService_Reconcile_NoSource(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, nil)
	ctx := context.Background()

	_, err := svc.Reconcile(ctx, "subj-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no subscription source")
}

func TestEntitlementService_Reconcile_ExpiresLapsed(t *testing.T) {
	db := &mockDB{}
	svc := NewEntitlementService(db, &fakeSource{})
	ctx := context.Background()

	now := time.Now().Truncate(time.Microsecond)
	past := now.Add(-time.Hour)
	rows := newMockRows(func(dest ...any) error {
		*(dest[0].(*string)) = "ent-1"
		*(dest[1].(*string)) = "subj-1"
		*(dest[2].(*string)) = "cast.fire"
		*(dest[3].(*string)) = model.EntitlementActive
		*(dest[4].(*string)) = model.EntitlementSourceWebhook
		*(dest[5].(*time.Time)) = past
		*(dest[6].(**time.Time)) = &past // expired an hour ago
		*(dest[7].(**time.Time)) = nil
		*(dest[8].(*time.Time)) = past
		return nil
	})
	tx := db.expectTx(ctx)
	db.On("Query", ctx, sqlContains("FROM entitlements"), mock.Anything).Return(rows, nil)
	db.On("Exec", ctx, sqlContains("SET status = 'expired'"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("Exec", ctx, sqlContains("INSERT INTO audit_events"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	updated, err := svc.Reconcile(ctx, "subj-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}
