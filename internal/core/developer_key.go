package core

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spellhq/spellgate/internal/model"
	"github.com/spellhq/spellgate/internal/platform"
)

const secretPrefixLen = 12 // "spl_" + first 8 hex chars

// DeveloperKeyService issues, rotates, and revokes developer keys and the
// scope grants attached to them.
type DeveloperKeyService struct {
	db DB
}

func NewDeveloperKeyService(db DB) *DeveloperKeyService {
	return &DeveloperKeyService{db: db}
}

func hashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// Create generates a new developer key for the owner and returns it with the
// plaintext secret. The plaintext is returned exactly once and never again;
// only its hash is retained.
func (s *DeveloperKeyService) Create(ctx context.Context, ownerID, name string, actorID *string) (*model.DeveloperKey, string, error) {
	secret := platform.NewSecret("spl_")
	return s.createWithSecret(ctx, ownerID, name, secret, actorID)
}

func (s *DeveloperKeyService) createWithSecret(ctx context.Context, ownerID, name, secret string, actorID *string) (*model.DeveloperKey, string, error) {
	keyID := platform.NewID()
	secretHash := hashSecret(secret)
	prefix := secret
	if len(prefix) > secretPrefixLen {
		prefix = prefix[:secretPrefixLen]
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin create key tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO developer_keys (key_id, owner_id, name, secret_hash, secret_prefix, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'active', now())`,
		keyID, ownerID, name, secretHash, prefix,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert developer key: %w", err)
	}

	meta := map[string]string{"name": name, "owner_id": ownerID}
	if _, err := insertAuditEvent(ctx, tx, model.AuditDeveloperKeyCreated, actorID, &keyID, meta); err != nil {
		return nil, "", err
	}

	key := &model.DeveloperKey{
		KeyID:        keyID,
		OwnerID:      ownerID,
		Name:         name,
		SecretPrefix: prefix,
		Status:       model.KeyStatusActive,
	}
	err = tx.QueryRow(ctx, `SELECT created_at FROM developer_keys WHERE key_id = $1`, keyID).Scan(&key.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("get developer key created_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit create key tx: %w", err)
	}

	return key, secret, nil
}

// Rotate invalidates the old secret and activates a new one in a single
// UPDATE. Tokens already issued under the old secret keep their own expiry;
// rotation only affects future issuance.
func (s *DeveloperKeyService) Rotate(ctx context.Context, keyID string, actorID *string) (string, error) {
	secret := platform.NewSecret("spl_")
	secretHash := hashSecret(secret)
	prefix := secret[:secretPrefixLen]

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin rotate key tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE developer_keys SET secret_hash = $1, secret_prefix = $2, rotated_at = now()
		 WHERE key_id = $3 AND status = 'active'`,
		secretHash, prefix, keyID,
	)
	if err != nil {
		return "", fmt.Errorf("rotate developer key %s: %w", keyID, err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("developer key %s: %w", keyID, ErrNotFound)
	}

	if _, err := insertAuditEvent(ctx, tx, model.AuditDeveloperKeyRotated, actorID, &keyID, nil); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit rotate key tx: %w", err)
	}

	return secret, nil
}

// Revoke sets the key status to revoked. All future token issuance against
// the key fails with ErrKeyRevoked, and the decision point re-checks key
// status on every call, so revocation takes effect immediately there too.
func (s *DeveloperKeyService) Revoke(ctx context.Context, keyID string, actorID *string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin revoke key tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE developer_keys SET status = 'revoked', revoked_at = now() WHERE key_id = $1 AND status = 'active'`,
		keyID,
	)
	if err != nil {
		return fmt.Errorf("revoke developer key %s: %w", keyID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("developer key %s: %w", keyID, ErrNotFound)
	}

	if _, err := insertAuditEvent(ctx, tx, model.AuditDeveloperKeyRevoked, actorID, &keyID, nil); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit revoke key tx: %w", err)
	}
	return nil
}

// GrantScope attaches a scope to the key. The scope must exist in the
// registry. Re-granting a revoked scope reactivates it.
func (s *DeveloperKeyService) GrantScope(ctx context.Context, keyID, scope, conditionType string, actorID *string) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scopes WHERE name = $1)`, scope).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check scope %s: %w", scope, err)
	}
	if !exists {
		return fmt.Errorf("scope %s: %w", scope, ErrScopeUnknown)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin grant scope tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO scope_grants (key_id, scope, condition_type, granted_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key_id, scope)
		 DO UPDATE SET condition_type = EXCLUDED.condition_type, granted_at = now(), revoked_at = NULL`,
		keyID, scope, conditionType,
	)
	if err != nil {
		return fmt.Errorf("grant scope %s to key %s: %w", scope, keyID, err)
	}

	meta := map[string]string{"scope": scope, "action": "grant", "condition_type": conditionType}
	if _, err := insertAuditEvent(ctx, tx, model.AuditScopeGrantChanged, actorID, &keyID, meta); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit grant scope tx: %w", err)
	}
	return nil
}

// RevokeScope marks the grant revoked. Idempotent.
func (s *DeveloperKeyService) RevokeScope(ctx context.Context, keyID, scope string, actorID *string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin revoke scope tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE scope_grants SET revoked_at = now() WHERE key_id = $1 AND scope = $2 AND revoked_at IS NULL`,
		keyID, scope,
	)
	if err != nil {
		return fmt.Errorf("revoke scope %s from key %s: %w", scope, keyID, err)
	}
	if tag.RowsAffected() > 0 {
		meta := map[string]string{"scope": scope, "action": "revoke"}
		if _, err := insertAuditEvent(ctx, tx, model.AuditScopeGrantChanged, actorID, &keyID, meta); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit revoke scope tx: %w", err)
	}
	return nil
}

// EffectiveScopes returns the key's currently granted scope strings.
func (s *DeveloperKeyService) EffectiveScopes(ctx context.Context, keyID string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT scope FROM scope_grants WHERE key_id = $1 AND revoked_at IS NULL ORDER BY scope`, keyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list effective scopes for key %s: %w", keyID, err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scopes: %w", err)
	}

	return scopes, nil
}

// ListScopeGrants returns all grant rows for a key, including revoked ones.
func (s *DeveloperKeyService) ListScopeGrants(ctx context.Context, keyID string) ([]model.ScopeGrant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT key_id, scope, condition_type, granted_at, revoked_at FROM scope_grants
		 WHERE key_id = $1 ORDER BY scope`, keyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list scope grants for key %s: %w", keyID, err)
	}
	defer rows.Close()

	var grants []model.ScopeGrant
	for rows.Next() {
		var g model.ScopeGrant
		if err := rows.Scan(&g.KeyID, &g.Scope, &g.ConditionType, &g.GrantedAt, &g.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan scope grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scope grants: %w", err)
	}

	return grants, nil
}

// GetByID retrieves a developer key by its public ID.
func (s *DeveloperKeyService) GetByID(ctx context.Context, keyID string) (*model.DeveloperKey, error) {
	var k model.DeveloperKey
	err := s.db.QueryRow(ctx,
		`SELECT key_id, owner_id, name, secret_hash, secret_prefix, status, created_at, rotated_at, revoked_at
		 FROM developer_keys WHERE key_id = $1`, keyID,
	).Scan(&k.KeyID, &k.OwnerID, &k.Name, &k.SecretHash, &k.SecretPrefix, &k.Status, &k.CreatedAt, &k.RotatedAt, &k.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("developer key %s: %w", keyID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get developer key %s: %w", keyID, err)
	}
	return &k, nil
}

// GetBySecret resolves a plaintext secret to its key. The digest lookup is
// confirmed with a constant-time comparison before the key is returned.
// Revoked keys still resolve; callers decide how to treat key status.
func (s *DeveloperKeyService) GetBySecret(ctx context.Context, secret string) (*model.DeveloperKey, error) {
	secretHash := hashSecret(secret)

	var k model.DeveloperKey
	err := s.db.QueryRow(ctx,
		`SELECT key_id, owner_id, name, secret_hash, secret_prefix, status, created_at, rotated_at, revoked_at
		 FROM developer_keys WHERE secret_hash = $1`, secretHash,
	).Scan(&k.KeyID, &k.OwnerID, &k.Name, &k.SecretHash, &k.SecretPrefix, &k.Status, &k.CreatedAt, &k.RotatedAt, &k.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidSecret
	}
	if err != nil {
		return nil, fmt.Errorf("get developer key by secret: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(secretHash), []byte(k.SecretHash)) != 1 {
		return nil, ErrInvalidSecret
	}

	return &k, nil
}

// List retrieves a user's developer keys with cursor-based pagination.
func (s *DeveloperKeyService) List(ctx context.Context, ownerID string, limit int, cursor string) ([]model.DeveloperKey, bool, error) {
	query := `SELECT key_id, owner_id, name, secret_hash, secret_prefix, status, created_at, rotated_at, revoked_at
	          FROM developer_keys WHERE owner_id = $1`
	args := []any{ownerID}
	argIdx := 2

	if cursor != "" {
		query += fmt.Sprintf(` AND key_id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list developer keys: %w", err)
	}
	defer rows.Close()

	var keys []model.DeveloperKey
	for rows.Next() {
		var k model.DeveloperKey
		if err := rows.Scan(&k.KeyID, &k.OwnerID, &k.Name, &k.SecretHash, &k.SecretPrefix, &k.Status, &k.CreatedAt, &k.RotatedAt, &k.RevokedAt); err != nil {
			return nil, false, fmt.Errorf("scan developer key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate developer keys: %w", err)
	}

	hasMore := len(keys) > limit
	if hasMore {
		keys = keys[:limit]
	}
	return keys, hasMore, nil
}
