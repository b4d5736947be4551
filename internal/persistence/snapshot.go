package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager creates and loads state snapshots for recovery. On warm
// restart the service loads the latest snapshot and replays events from
// snapshot.sequence+1; on cold start it replays the whole log.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the serializable form of the engine's in-memory state.
type SnapshotData struct {
	Sequence      int64                 `json:"sequence"`
	StateHash     []byte                `json:"state_hash"`
	Policies      []PolicySnapshot      `json:"policies"`
	OwnerIndex    map[string][]int64    `json:"owner_index"`    // owner uuid -> policy ids
	Measurements  []MeasurementSnapshot `json:"measurements"`
	PoolBalance   int64                 `json:"pool_balance"`
	FeedSequences map[string]int64      `json:"feed_sequences"` // location -> last feed seq
	DedupKeys     []string              `json:"dedup_keys"`     // recent keys for LRU warming
	CreatedAt     time.Time             `json:"created_at"`
}

// PolicySnapshot is a serializable policy record.
type PolicySnapshot struct {
	ID       int64     `json:"id"`
	Owner    string    `json:"owner"`
	Premium  int64     `json:"premium"`
	Coverage int64     `json:"coverage"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location"`
	Active   bool      `json:"active"`
	Settled  bool      `json:"settled"`
}

// MeasurementSnapshot is a serializable reading.
type MeasurementSnapshot struct {
	Location    string    `json:"location"`
	Value       int64     `json:"value"`
	PublishedAt time.Time `json:"published_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded SnapshotData

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, snapshotID, snap.Sequence, data, snap.StateHash, formatVersion, len(data), snap.CreatedAt)

	return err
}

// LoadLatestSnapshot loads the most recent snapshot. Returns nil for a
// cold start with no snapshot.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// LoadEventsFrom loads up to limit event rows starting at fromSequence,
// in sequence order. Used by replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, location, payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(
			&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Location,
			&r.Payload, &r.StateHash, &r.PrevHash, &r.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}
