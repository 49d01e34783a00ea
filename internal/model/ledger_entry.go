package model

import "time"

// LedgerEntry deduplicates inbound webhook deliveries. provider_event_id is
// unique; a second delivery of the same ID is recorded as a duplicate and
// never reaches the entitlement store. processed_at is set only after
// downstream handling committed; unprocessed rows are picked up by
// reconcile, never redelivered automatically.
type LedgerEntry struct {
	ProviderEventID string     `json:"provider_event_id"`
	PayloadHash     string     `json:"payload_hash"`
	ReceivedAt      time.Time  `json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
}
