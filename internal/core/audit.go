package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spellhq/spellgate/internal/model"
	"github.com/spellhq/spellgate/internal/platform"
)

// AuditService records and queries the append-only audit trail. There is no
// update or delete operation; rows written here are immutable.
//
// Writes are synchronous and happen on the same DB handle (pool or open
// transaction) as the state change they describe, so a state change can
// never commit without its audit record.
type AuditService struct {
	db DB
}

func NewAuditService(db DB) *AuditService {
	return &AuditService{db: db}
}

// Append writes one audit event and returns its ID.
func (s *AuditService) Append(ctx context.Context, eventName string, actorID, targetID *string, metadata map[string]string) (string, error) {
	return insertAuditEvent(ctx, s.db, eventName, actorID, targetID, metadata)
}

// insertAuditEvent is the shared write path. Services mutating state inside
// a transaction pass their pgx.Tx so the audit row commits atomically with
// the change.
func insertAuditEvent(ctx context.Context, db DBTX, eventName string, actorID, targetID *string, metadata map[string]string) (string, error) {
	id := platform.NewID()

	var meta []byte
	if len(metadata) > 0 {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return "", fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	_, err := db.Exec(ctx,
		`INSERT INTO audit_events (id, event_name, actor_id, target_id, metadata, created_at) VALUES ($1, $2, $3, $4, $5, now())`,
		id, eventName, actorID, targetID, meta,
	)
	if err != nil {
		return "", fmt.Errorf("insert audit event %s: %w", eventName, err)
	}

	return id, nil
}

// AuditFilter narrows List results. Zero values mean no constraint.
type AuditFilter struct {
	EventNamePrefix string
	ActorID         string
	TargetID        string
	Since           time.Time
	Limit           int
}

// List returns audit events ordered by created_at descending.
func (s *AuditService) List(ctx context.Context, filter AuditFilter) ([]model.AuditEvent, error) {
	query := `SELECT id, event_name, actor_id, target_id, metadata, created_at FROM audit_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if filter.EventNamePrefix != "" {
		query += fmt.Sprintf(` AND event_name LIKE $%d`, argIdx)
		args = append(args, filter.EventNamePrefix+"%")
		argIdx++
	}
	if filter.ActorID != "" {
		query += fmt.Sprintf(` AND actor_id = $%d`, argIdx)
		args = append(args, filter.ActorID)
		argIdx++
	}
	if filter.TargetID != "" {
		query += fmt.Sprintf(` AND target_id = $%d`, argIdx)
		args = append(args, filter.TargetID)
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.EventName, &e.ActorID, &e.TargetID, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
