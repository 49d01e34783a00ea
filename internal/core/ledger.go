package core

import (
	"context"
	"fmt"

	"github.com/spellhq/spellgate/internal/model"
)

// LedgerStatus is the outcome of recording a provider event.
type LedgerStatus string

const (
	LedgerProcessed LedgerStatus = "processed"
	LedgerDuplicate LedgerStatus = "duplicate"
)

// LedgerService deduplicates inbound webhook events by provider event ID.
// The unique constraint on provider_event_id is the sole serialization
// point for webhook processing: two concurrent deliveries of the same event
// race to a single winner at the storage layer.
type LedgerService struct {
	db DB
}

func NewLedgerService(db DB) *LedgerService {
	return &LedgerService{db: db}
}

// Record inserts a ledger entry for the event if none exists. Returns
// LedgerDuplicate when the event ID was already recorded; callers must
// short-circuit before touching the entitlement store in that case.
func (s *LedgerService) Record(ctx context.Context, providerEventID, payloadHash string) (LedgerStatus, error) {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO ledger_entries (provider_event_id, payload_hash, received_at) VALUES ($1, $2, now())
		 ON CONFLICT (provider_event_id) DO NOTHING`,
		providerEventID, payloadHash,
	)
	if err != nil {
		return "", fmt.Errorf("insert ledger entry %s: %w", providerEventID, err)
	}
	if tag.RowsAffected() == 0 {
		return LedgerDuplicate, nil
	}
	return LedgerProcessed, nil
}

// MarkProcessed stamps processed_at after downstream handling committed.
// Runs on the caller's transaction so a failed downstream mutation leaves
// the entry unprocessed for reconcile.
func (s *LedgerService) MarkProcessed(ctx context.Context, db DBTX, providerEventID string) error {
	tag, err := db.Exec(ctx,
		`UPDATE ledger_entries SET processed_at = now() WHERE provider_event_id = $1 AND processed_at IS NULL`,
		providerEventID,
	)
	if err != nil {
		return fmt.Errorf("mark ledger entry %s processed: %w", providerEventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger entry %s not found or already processed", providerEventID)
	}
	return nil
}

// List returns the most recently received entries.
func (s *LedgerService) List(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT provider_event_id, payload_hash, received_at, processed_at FROM ledger_entries
		 ORDER BY received_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ProviderEventID, &e.PayloadHash, &e.ReceivedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}

// Unprocessed returns entries whose downstream handling never committed,
// oldest first. Operator tooling feeds these back through reconcile.
func (s *LedgerService) Unprocessed(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx,
		`SELECT provider_event_id, payload_hash, received_at, processed_at FROM ledger_entries
		 WHERE processed_at IS NULL ORDER BY received_at ASC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ProviderEventID, &e.PayloadHash, &e.ReceivedAt, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	return entries, nil
}
