package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresDedupChecker is the cold tier of measurement deduplication: a
// publication that aged out of the engine's LRU is still found here because
// the event log keeps every envelope ever appended.
type PostgresDedupChecker struct {
	db *sql.DB
}

func NewPostgresDedupChecker(db *sql.DB) *PostgresDedupChecker {
	return &PostgresDedupChecker{db: db}
}

// IsDuplicate checks whether the publication already exists in the event log.
func (pc *PostgresDedupChecker) IsDuplicate(eventType string, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM event_log.events
        WHERE event_type = $1 AND idempotency_key = $2
        LIMIT 1
    `

	var exists int
	err := pc.db.QueryRowContext(ctx, query, eventType, idempotencyKey).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}
