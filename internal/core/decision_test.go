package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spellhq/spellgate/internal/model"
)

func newTestDecisionService(db *mockDB) *DecisionService {
	keys := NewDeveloperKeyService(db)
	tokens := NewTokenService(db, keys, testSigningKey, 15*time.Minute, 30*24*time.Hour)
	ents := NewEntitlementService(db, nil)
	return NewDecisionService(tokens, keys, ents, zerolog.Nop())
}

// signTestToken mints a valid access token for the test signing key.
func signTestToken(t *testing.T, keyID string, scopes []string) string {
	t.Helper()
	tokens := NewTokenService(nil, nil, testSigningKey, 15*time.Minute, time.Hour)
	pair, err := tokens.newPairOn(context.Background(), &execOKTx{}, keyID, scopes, "fam-test")
	require.NoError(t, err)
	return pair.AccessToken
}

// execOKTx satisfies DBTX with a successful Exec, for minting tokens without
// a full mock setup.
type execOKTx struct{ mockTx }

func (t *execOKTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func keyRow(status string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "key-1"
		*(dest[1].(*string)) = "user-1"
		*(dest[2].(*string)) = "ci key"
		*(dest[3].(*string)) = "hash"
		*(dest[4].(*string)) = "spl_01234567"
		*(dest[5].(*string)) = status
		*(dest[6].(*time.Time)) = time.Now()
		*(dest[7].(**time.Time)) = nil
		*(dest[8].(**time.Time)) = nil
		return nil
	}}
}

func entitlementRow(active bool) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = active
		return nil
	}}
}

func TestDecisionService_Check_Allowed(t *testing.T) {
	db := &mockDB{}
	svc := newTestDecisionService(db)
	ctx := context.Background()
	token := signTestToken(t, "key-1", []string{"cast.fire"})

	db.On("QueryRow", ctx, sqlContains("FROM developer_keys"), mock.Anything).Return(keyRow(model.KeyStatusActive))
	db.On("QueryRow", ctx, sqlContains("FROM entitlements"), mock.Anything).Return(entitlementRow(true))

	allowed, err := svc.Check(ctx, token, "subj-1", "cast.fire")
	require.NoError(t, err)
	assert.True(t, allowed)
	db.AssertExpectations(t)
}

func TestDecisionService_Check_InvalidToken(t *testing.T) {
	db := &mockDB{}
	svc := newTestDecisionService(db)

	// Garbage tokens deny without touching storage and without an error.
	allowed, err := svc.Check(context.Background(), "garbage", "subj-1", "cast.fire")
	require.NoError(t, err)
	assert.False(t, allowed)
	db.AssertExpectations(t)
}

func TestDecisionService_Check_RevokedKey(t *testing.T) {
	db := &mockDB{}
	svc := newTestDecisionService(db)
	ctx := context.Background()
	token := signTestToken(t, "key-1", []string{"cast.fire"})

	db.On("QueryRow", ctx, sqlContains("FROM developer_keys"), mock.Anything).Return(keyRow(model.KeyStatusRevoked))

	allowed, err := svc.Check(ctx, token, "subj-1", "cast.fire")
	require.NoError(t, err)
	assert.False(t, allowed)
	db.AssertExpectations(t)
}

func TestDecisionService_Check_ScopeNotInToken(t *testing.T) {
	db := &mockDB{}
	svc := newTestDecisionService(db)
	ctx := context.Background()
	// The key may hold cast.ice, but this token was issued without it.
	token := signTestToken(t, "key-1", []string{"cast.fire"})

	db.On("QueryRow", ctx, sqlContains("FROM developer_keys"), mock.Anything).Return(keyRow(model.KeyStatusActive))

	allowed, err := svc.Check(ctx, token, "subj-1", "cast.ice")
	require.NoError(t, err)
	assert.False(t, allowed)
	db.AssertExpectations(t)
}

func TestDecisionService_Check_NoEntitlement(t *testing.T) {
	db := &mockDB{}
	svc := newTestDecisionService(db)
	ctx := context.Background()
	token := signTestToken(t, "key-1", []string{"cast.fire"})

	db.On("QueryRow", ctx, sqlContains("FROM developer_keys"), mock.Anything).Return(keyRow(model.KeyStatusActive))
	db.On("QueryRow", ctx, sqlContains("FROM entitlements"), mock.Anything).Return(entitlementRow(false))

	allowed, err := svc.Check(ctx, token, "subj-1", "cast.fire")
	require.NoError(t, err)
	assert.False(t, allowed)
	db.AssertExpectations(t)
}

func TestDecisionService_Check_StorageErrorFailsClosed(t *testing.T) {
	db := &mockDB{}
	svc := newTestDecisionService(db)
	ctx := context.Background()
	token := signTestToken(t, "key-1", []string{"cast.fire"})

	db.On("QueryRow", ctx, sqlContains("FROM developer_keys"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			return errors.New("connection refused")
		}})

	// Denied, but with the error surfaced so logs can tell infrastructure
	// trouble apart from a real denial.
	allowed, err := svc.Check(ctx, token, "subj-1", "cast.fire")
	require.Error(t, err)
	assert.False(t, allowed)
	db.AssertExpectations(t)
}
