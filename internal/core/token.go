package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jackc/pgx/v5"

	"github.com/spellhq/spellgate/internal/model"
	"github.com/spellhq/spellgate/internal/platform"
)

// AccessClaims is the payload of a signed access token. The scope set is
// fixed at issuance; later grants to the key never widen it.
type AccessClaims struct {
	KeyID  string   `json:"key_id"`
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token's fixed scope set contains scope.
func (c *AccessClaims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenService exchanges developer key secrets for short-lived access/refresh
// token pairs. Access tokens are HS256 JWTs validated locally; refresh
// tokens are opaque single-use secrets stored by digest.
type TokenService struct {
	db         DB
	keys       *DeveloperKeyService
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(db DB, keys *DeveloperKeyService, signingKey []byte, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		db:         db,
		keys:       keys,
		signingKey: signingKey,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue verifies the key secret and returns a new token pair limited to the
// requested scopes. Requesting a scope the key does not currently hold
// fails with ErrScopeNotGranted. An empty request means all granted scopes.
func (s *TokenService) Issue(ctx context.Context, keySecret string, requestedScopes []string) (*model.TokenPair, error) {
	key, err := s.keys.GetBySecret(ctx, keySecret)
	if err != nil {
		return nil, err
	}
	if key.Status == model.KeyStatusRevoked {
		return nil, ErrKeyRevoked
	}

	granted, err := s.keys.EffectiveScopes(ctx, key.KeyID)
	if err != nil {
		return nil, err
	}

	scopes := granted
	if len(requestedScopes) > 0 {
		grantedSet := make(map[string]bool, len(granted))
		for _, g := range granted {
			grantedSet[g] = true
		}
		seen := make(map[string]bool, len(requestedScopes))
		scopes = scopes[:0:0]
		for _, req := range requestedScopes {
			if !grantedSet[req] {
				return nil, fmt.Errorf("scope %s: %w", req, ErrScopeNotGranted)
			}
			if !seen[req] {
				seen[req] = true
				scopes = append(scopes, req)
			}
		}
	}
	if len(scopes) == 0 {
		return nil, ErrScopeNotGranted
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin issue tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pair, err := s.newPairOn(ctx, tx, key.KeyID, scopes, platform.NewID())
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"scopes": strings.Join(scopes, " ")}
	if _, err := insertAuditEvent(ctx, tx, model.AuditTokenIssued, nil, &key.KeyID, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit issue tx: %w", err)
	}

	return pair, nil
}

// Refresh consumes an unexpired, unused refresh token and returns a new
// pair in the same family. The consumed token is invalidated atomically;
// exactly one of N concurrent replays wins. Replaying an already-consumed
// token revokes the entire family and fails with ErrRefreshTokenReused.
//
// The key's effective scopes are re-evaluated here: a scope revoked since
// the original issuance is dropped from the new pair.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	tokenHash := hashSecret(refreshToken)

	var row model.RefreshToken
	err := s.db.QueryRow(ctx,
		`SELECT id, family_id, key_id, scopes, issued_at, expires_at, used_at, revoked_at
		 FROM refresh_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&row.ID, &row.FamilyID, &row.KeyID, &row.Scopes, &row.IssuedAt, &row.ExpiresAt, &row.UsedAt, &row.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRefreshTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}

	// Single-winner consumption. The conditional UPDATE is the atomic
	// check-and-set; concurrent replays see zero rows affected.
	tag, err := s.db.Exec(ctx,
		`UPDATE refresh_tokens SET used_at = now()
		 WHERE id = $1 AND used_at IS NULL AND revoked_at IS NULL AND expires_at > now()`,
		row.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, s.classifyConsumeFailure(ctx, row)
	}

	key, err := s.keys.GetByID(ctx, row.KeyID)
	if err != nil {
		return nil, err
	}
	if key.Status == model.KeyStatusRevoked {
		return nil, ErrKeyRevoked
	}

	granted, err := s.keys.EffectiveScopes(ctx, row.KeyID)
	if err != nil {
		return nil, err
	}
	grantedSet := make(map[string]bool, len(granted))
	for _, g := range granted {
		grantedSet[g] = true
	}
	var scopes []string
	for _, sc := range row.Scopes {
		if grantedSet[sc] {
			scopes = append(scopes, sc)
		}
	}
	if len(scopes) == 0 {
		return nil, ErrScopeNotGranted
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin refresh tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pair, err := s.newPairOn(ctx, tx, row.KeyID, scopes, row.FamilyID)
	if err != nil {
		return nil, err
	}

	meta := map[string]string{"scopes": strings.Join(scopes, " "), "family_id": row.FamilyID}
	if _, err := insertAuditEvent(ctx, tx, model.AuditTokenRefreshed, nil, &row.KeyID, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refresh tx: %w", err)
	}

	return pair, nil
}

// classifyConsumeFailure distinguishes a replayed token from an expired or
// family-revoked one. Reuse is treated as a compromise signal: the whole
// family is revoked, not just the replayed token.
func (s *TokenService) classifyConsumeFailure(ctx context.Context, row model.RefreshToken) error {
	var usedAt, revokedAt *time.Time
	var expiresAt time.Time
	err := s.db.QueryRow(ctx,
		`SELECT expires_at, used_at, revoked_at FROM refresh_tokens WHERE id = $1`, row.ID,
	).Scan(&expiresAt, &usedAt, &revokedAt)
	if err != nil {
		return fmt.Errorf("reload refresh token: %w", err)
	}

	if usedAt != nil && revokedAt == nil {
		if err := s.revokeFamily(ctx, row.FamilyID, row.KeyID); err != nil {
			return err
		}
		return ErrRefreshTokenReused
	}
	if usedAt != nil {
		return ErrRefreshTokenReused
	}
	return ErrRefreshTokenExpired
}

func (s *TokenService) revokeFamily(ctx context.Context, familyID, keyID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin revoke family tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = now() WHERE family_id = $1 AND revoked_at IS NULL`,
		familyID,
	)
	if err != nil {
		return fmt.Errorf("revoke token family %s: %w", familyID, err)
	}

	meta := map[string]string{"family_id": familyID, "reason": "refresh_token_reuse"}
	if _, err := insertAuditEvent(ctx, tx, model.AuditTokenFamilyRevoked, nil, &keyID, meta); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit revoke family tx: %w", err)
	}
	return nil
}

func (s *TokenService) newPairOn(ctx context.Context, db DBTX, keyID string, scopes []string, familyID string) (*model.TokenPair, error) {
	now := time.Now()
	expiresAt := now.Add(s.accessTTL)

	claims := &AccessClaims{
		KeyID:  keyID,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   keyID,
			ID:        platform.NewID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := platform.NewSecret("splr_")
	_, err = db.Exec(ctx,
		`INSERT INTO refresh_tokens (id, family_id, key_id, token_hash, scopes, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		platform.NewID(), familyID, keyID, hashSecret(refreshToken), scopes, now, now.Add(s.refreshTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}

	return &model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseAccessToken validates signature and expiry and returns the claims.
// Purely local; no storage read.
func (s *TokenService) ParseAccessToken(raw string) (*AccessClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	var claims AccessClaims
	token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if !token.Valid || claims.KeyID == "" {
		return nil, fmt.Errorf("parse access token: invalid claims")
	}
	return &claims, nil
}
