package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"DroughtLedger/internal/event"

	"github.com/rs/zerolog"
)

// Output mirrors the data projection workers need from a committed event.
// The orchestrator bridges between core.Output and this.
type Output struct {
	Sequence  int64
	Type      event.Type
	Payload   []byte
	Timestamp time.Time
}

// Worker updates the read-model tables from committed events. The engine
// feeds it over a non-blocking channel with drop, so the tables are
// eventually consistent; Rebuild regenerates them from the event log.
type Worker struct {
	db        *sql.DB
	inputChan <-chan Output
	log       zerolog.Logger
}

func NewWorker(db *sql.DB, inputChan <-chan Output, log zerolog.Logger) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
		log:       log.With().Str("component", "projection").Logger(),
	}
}

// Run starts the projection worker loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-w.inputChan:
			if !ok {
				return nil
			}

			if err := w.processOutput(ctx, output); err != nil {
				// Keep going: projections are rebuilt from the log
				w.log.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
			}
		}
	}
}

func (w *Worker) processOutput(ctx context.Context, output Output) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.applyEvent(ctx, tx, output); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (w *Worker) applyEvent(ctx context.Context, tx *sql.Tx, output Output) error {
	switch output.Type {
	case event.TypePolicyCreated:
		var ev event.PolicyCreated
		if err := json.Unmarshal(output.Payload, &ev); err != nil {
			return fmt.Errorf("decode policy_created: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.policies
				(policy_id, owner_id, premium, coverage, location, start_at, end_at, active, settled, payout, last_sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, FALSE, 0, $8)
			ON CONFLICT (policy_id) DO NOTHING
		`, ev.PolicyID, ev.Owner, ev.Premium, ev.Coverage, ev.LocationKey, ev.Start, ev.End, output.Sequence)
		return err

	case event.TypeClaimProcessed:
		var ev event.ClaimProcessed
		if err := json.Unmarshal(output.Payload, &ev); err != nil {
			return fmt.Errorf("decode claim_processed: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET active = FALSE, settled = TRUE, payout = $2, last_sequence = $3
			WHERE policy_id = $1
		`, ev.PolicyID, ev.Payout, output.Sequence)
		return err

	case event.TypePolicyDeactivated:
		var ev event.PolicyDeactivated
		if err := json.Unmarshal(output.Payload, &ev); err != nil {
			return fmt.Errorf("decode policy_deactivated: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE projections.policies
			SET active = FALSE, last_sequence = $2
			WHERE policy_id = $1
		`, ev.PolicyID, output.Sequence)
		return err

	case event.TypeMeasurementPublished:
		var ev event.MeasurementPublished
		if err := json.Unmarshal(output.Payload, &ev); err != nil {
			return fmt.Errorf("decode measurement_published: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projections.readings (location, value, published_at, last_sequence)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (location) DO UPDATE
				SET value = $2, published_at = $3, last_sequence = $4
				WHERE projections.readings.last_sequence < $4
		`, ev.LocationKey, ev.Value, output.Timestamp, output.Sequence)
		return err

	case event.TypeExcessWithdrawn:
		// Pool-level event, nothing to project
		return nil

	default:
		return nil
	}
}

// Rebuild regenerates all projection tables from the event log.
func Rebuild(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	truncateStatements := []string{
		`TRUNCATE projections.policies`,
		`TRUNCATE projections.readings`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sequence, event_type, payload, timestamp
		FROM event_log.events
		ORDER BY sequence ASC
	`)
	if err != nil {
		return fmt.Errorf("scan event log: %w", err)
	}
	defer rows.Close()

	w := &Worker{db: db, log: log}
	var count int64

	for rows.Next() {
		var output Output
		var typeName string
		if err := rows.Scan(&output.Sequence, &typeName, &output.Payload, &output.Timestamp); err != nil {
			return err
		}
		output.Type = event.ParseType(typeName)

		if err := w.processOutput(ctx, output); err != nil {
			return fmt.Errorf("rebuild at seq %d: %w", output.Sequence, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	log.Info().Int64("events", count).Msg("projection rebuild complete")
	return nil
}
