package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"DroughtLedger/internal/event"
)

// EventLogWriter writes event envelopes to Postgres using multi-row INSERT.
// A single insert statement per batch keeps round trips down; switch to pgx
// CopyFrom if the feed rate ever outgrows this.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events.
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Location       *string
	Payload        []byte // JSON-encoded event payload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// RowFromEnvelope flattens an engine envelope into a storable row.
func RowFromEnvelope(env *event.Envelope) EventRow {
	stateHash := make([]byte, 32)
	prevHash := make([]byte, 32)
	copy(stateHash, env.StateHash[:])
	copy(prevHash, env.PrevHash[:])

	return EventRow{
		Sequence:       env.Sequence,
		EventType:      env.Type.String(),
		IdempotencyKey: env.IdempotencyKey,
		Location:       env.Location,
		Payload:        env.Payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
		Timestamp:      env.Timestamp,
	}
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of rows inside the given transaction.
// Writes are idempotent on sequence, so a crashed worker can safely
// rewrite its last batch on restart.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, location, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*8)

	for i, e := range events {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Location,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	// A rewritten batch conflicts on both the sequence key and the
	// idempotency index; either way the row is already stored.
	query += " ON CONFLICT DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
