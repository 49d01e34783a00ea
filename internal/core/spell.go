package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spellhq/spellgate/internal/model"
	"github.com/spellhq/spellgate/internal/platform"
)

// SpellService manages the registry of spells. The decision point never
// consults it; it exists for attribution and lifecycle auditing.
type SpellService struct {
	db DB
}

func NewSpellService(db DB) *SpellService {
	return &SpellService{db: db}
}

// Create registers a spell in draft status.
func (s *SpellService) Create(ctx context.Context, name, runtimeID string, actorID *string) (*model.Spell, error) {
	id := platform.NewID()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create spell tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO spells (id, name, runtime_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 'draft', now(), now())`,
		id, name, runtimeID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert spell: %w", err)
	}

	meta := map[string]string{"name": name, "runtime_id": runtimeID}
	if _, err := insertAuditEvent(ctx, tx, model.AuditSpellCreated, actorID, &id, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create spell tx: %w", err)
	}

	return s.GetByID(ctx, id)
}

// UpdateStatus moves a spell between draft, active, and disabled.
func (s *SpellService) UpdateStatus(ctx context.Context, id, status string, actorID *string) (*model.Spell, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update spell tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE spells SET status = $1, updated_at = now() WHERE id = $2`, status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update spell %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("spell %s: %w", id, ErrNotFound)
	}

	meta := map[string]string{"status": status}
	if _, err := insertAuditEvent(ctx, tx, model.AuditSpellStatusUpdated, actorID, &id, meta); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update spell tx: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID retrieves a spell.
func (s *SpellService) GetByID(ctx context.Context, id string) (*model.Spell, error) {
	var sp model.Spell
	err := s.db.QueryRow(ctx,
		`SELECT id, name, runtime_id, status, created_at, updated_at FROM spells WHERE id = $1`, id,
	).Scan(&sp.ID, &sp.Name, &sp.RuntimeID, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("spell %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get spell %s: %w", id, err)
	}
	return &sp, nil
}

// List retrieves spells with cursor-based pagination.
func (s *SpellService) List(ctx context.Context, limit int, cursor string) ([]model.Spell, bool, error) {
	query := `SELECT id, name, runtime_id, status, created_at, updated_at FROM spells WHERE 1=1`
	args := []any{}
	argIdx := 1

	if cursor != "" {
		query += fmt.Sprintf(` AND id > $%d`, argIdx)
		args = append(args, cursor)
		argIdx++
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list spells: %w", err)
	}
	defer rows.Close()

	var spells []model.Spell
	for rows.Next() {
		var sp model.Spell
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.RuntimeID, &sp.Status, &sp.CreatedAt, &sp.UpdatedAt); err != nil {
			return nil, false, fmt.Errorf("scan spell: %w", err)
		}
		spells = append(spells, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate spells: %w", err)
	}

	hasMore := len(spells) > limit
	if hasMore {
		spells = spells[:limit]
	}
	return spells, hasMore, nil
}
