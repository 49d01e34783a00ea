package core

import (
	"context"
	"fmt"

	"github.com/spellhq/spellgate/internal/model"
)

// ScopeService maintains the registry of scope identifiers. The core
// assigns no meaning to a scope beyond its presence here; grants reference
// registered scopes only.
type ScopeService struct {
	db DB
}

func NewScopeService(db DB) *ScopeService {
	return &ScopeService{db: db}
}

// Create registers a scope name. Re-creating an existing scope updates its
// description rather than failing.
func (s *ScopeService) Create(ctx context.Context, name, description string, actorID *string) (*model.Scope, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create scope tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO scopes (name, description, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`,
		name, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert scope %s: %w", name, err)
	}

	meta := map[string]string{"name": name}
	if _, err := insertAuditEvent(ctx, tx, model.AuditScopeCreated, actorID, &name, meta); err != nil {
		return nil, err
	}

	scope := &model.Scope{Name: name, Description: description}
	err = tx.QueryRow(ctx, `SELECT created_at FROM scopes WHERE name = $1`, name).Scan(&scope.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get scope created_at: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create scope tx: %w", err)
	}

	return scope, nil
}

// List returns all registered scopes ordered by name.
func (s *ScopeService) List(ctx context.Context) ([]model.Scope, error) {
	rows, err := s.db.Query(ctx, `SELECT name, description, created_at FROM scopes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []model.Scope
	for rows.Next() {
		var sc model.Scope
		if err := rows.Scan(&sc.Name, &sc.Description, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		scopes = append(scopes, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scopes: %w", err)
	}

	return scopes, nil
}
