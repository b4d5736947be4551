package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Service provides read-only access to the event log and read-model tables.
// Reads served here may trail the engine; every response carries
// as_of_sequence so callers can reason about freshness. Authoritative reads
// of live state go through the engine instead.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetPolicy returns one policy from the read model.
func (s *Service) GetPolicy(ctx context.Context, policyID int64) (*PolicyRecord, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var p PolicyRecord
	p.AsOfSequence = asOfSeq
	err = s.db.QueryRowContext(ctx, `
		SELECT policy_id, owner_id, premium, coverage, location, start_at, end_at, active, settled, payout
		FROM projections.policies
		WHERE policy_id = $1
	`, policyID).Scan(
		&p.PolicyID, &p.Owner, &p.Premium, &p.Coverage, &p.Location,
		&p.Start, &p.End, &p.Active, &p.Settled, &p.Payout,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetPoliciesForOwner returns an owner's policies in purchase order.
func (s *Service) GetPoliciesForOwner(ctx context.Context, owner uuid.UUID) ([]PolicyRecord, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, owner_id, premium, coverage, location, start_at, end_at, active, settled, payout
		FROM projections.policies
		WHERE owner_id = $1
		ORDER BY policy_id ASC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PolicyRecord
	for rows.Next() {
		var p PolicyRecord
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.PolicyID, &p.Owner, &p.Premium, &p.Coverage, &p.Location,
			&p.Start, &p.End, &p.Active, &p.Settled, &p.Payout,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

// GetReading returns the latest stored reading for a location.
func (s *Service) GetReading(ctx context.Context, location string) (*ReadingRecord, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var r ReadingRecord
	r.AsOfSequence = asOfSeq
	err = s.db.QueryRowContext(ctx, `
		SELECT location, value, published_at
		FROM projections.readings
		WHERE location = $1
	`, location).Scan(&r.Location, &r.Value, &r.PublishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// GetEvents returns event-log entries starting at fromSequence, oldest
// first. Cursor pagination: pass the last returned sequence + 1 to continue.
func (s *Service) GetEvents(ctx context.Context, fromSequence int64, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
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

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Location,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// GetEventsForLocation returns the audit trail for one location.
func (s *Service) GetEventsForLocation(ctx context.Context, location string, limit int) ([]EventRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, location, payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE location = $1
		ORDER BY sequence DESC
		LIMIT $2
	`, location, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Location,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// VerifyIntegrity checks hash chain continuity across the event log:
// every event's prev_hash must equal the previous event's state_hash.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_log.events`,
	).Scan(&report.EventCount); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

func (s *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
