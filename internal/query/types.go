package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PolicyRecord is a policy read-model row for API queries.
type PolicyRecord struct {
	PolicyID     int64     `json:"policy_id"`
	Owner        uuid.UUID `json:"owner"`
	Premium      int64     `json:"premium"`
	Coverage     int64     `json:"coverage"`
	Location     string    `json:"location"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Active       bool      `json:"active"`
	Settled      bool      `json:"settled"`
	Payout       int64     `json:"payout"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// ReadingRecord is the latest stored reading for a location.
type ReadingRecord struct {
	Location     string    `json:"location"`
	Value        int64     `json:"value"`
	PublishedAt  time.Time `json:"published_at"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// EventRecord is one event-log entry for audit queries.
type EventRecord struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Location       *string         `json:"location,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      []byte          `json:"state_hash"`
	PrevHash       []byte          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// IntegrityReport is the result of a hash-chain verification pass.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	EventCount      int64   `json:"event_count"`
}
