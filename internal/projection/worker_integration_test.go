package projection_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"DroughtLedger/internal/event"
	"DroughtLedger/internal/persistence"
	"DroughtLedger/internal/projection"
	"DroughtLedger/internal/query"
	"DroughtLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	m := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return db
}

func mustOutput(t *testing.T, sequence int64, ev event.Event, ts time.Time) projection.Output {
	t.Helper()
	payload, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal %T: %v", ev, err)
	}
	return projection.Output{
		Sequence:  sequence,
		Type:      ev.EventType(),
		Payload:   payload,
		Timestamp: ts,
	}
}

// runWorker feeds outputs through the projection worker and waits for it to
// drain.
func runWorker(t *testing.T, db *sql.DB, outputs []projection.Output) {
	t.Helper()

	inputChan := make(chan projection.Output, len(outputs))
	worker := projection.NewWorker(db, inputChan, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(context.Background())
	}()

	for _, o := range outputs {
		inputChan <- o
	}
	close(inputChan)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("projection worker returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("projection worker did not drain")
	}
}

func TestProjection_PolicyLifecycle(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	owner := uuid.New()
	start := time.Now().UTC().Truncate(time.Microsecond)
	end := start.AddDate(0, 0, 90)

	runWorker(t, db, []projection.Output{
		mustOutput(t, 1, &event.PolicyCreated{
			PolicyID: 1, Owner: owner, Premium: 1_000, Coverage: 1_000,
			DurationDays: 90, LocationKey: "region-a", Start: start, End: end,
		}, start),
		mustOutput(t, 2, &event.MeasurementPublished{
			PublicationID: uuid.New(), LocationKey: "region-a", Value: 30, FeedSequence: 1,
		}, start.Add(time.Minute)),
		mustOutput(t, 3, &event.ClaimProcessed{
			PolicyID: 1, Owner: owner, Payout: 1_000, LocationKey: "region-a", Reading: 30,
		}, start.Add(time.Hour)),
	})

	svc := query.NewService(db)

	p, err := svc.GetPolicy(ctx, 1)
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p == nil {
		t.Fatal("expected policy 1 in the read model")
	}
	if p.Owner != owner || p.Coverage != 1_000 || p.Payout != 1_000 {
		t.Errorf("unexpected policy record: %+v", p)
	}
	if p.Active || !p.Settled {
		t.Errorf("expected settled inactive policy, got active=%v settled=%v", p.Active, p.Settled)
	}
	if p.AsOfSequence != 3 {
		t.Errorf("expected watermark 3, got %d", p.AsOfSequence)
	}

	r, err := svc.GetReading(ctx, "region-a")
	if err != nil {
		t.Fatalf("GetReading failed: %v", err)
	}
	if r == nil || r.Value != 30 {
		t.Fatalf("expected reading 30, got %+v", r)
	}
}

func TestProjection_StaleMeasurementDoesNotRegress(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	runWorker(t, db, []projection.Output{
		mustOutput(t, 5, &event.MeasurementPublished{
			PublicationID: uuid.New(), LocationKey: "region-a", Value: 40,
		}, now),
	})

	// A replayed older event must not overwrite a newer reading.
	runWorker(t, db, []projection.Output{
		mustOutput(t, 2, &event.MeasurementPublished{
			PublicationID: uuid.New(), LocationKey: "region-a", Value: 90,
		}, now.Add(-time.Hour)),
	})

	r, err := query.NewService(db).GetReading(ctx, "region-a")
	if err != nil {
		t.Fatalf("GetReading failed: %v", err)
	}
	if r == nil || r.Value != 40 {
		t.Fatalf("expected reading 40 to survive, got %+v", r)
	}
}

func TestProjection_RebuildFromEventLog(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	owner := uuid.New()
	start := time.Now().UTC().Truncate(time.Microsecond)
	created := &event.PolicyCreated{
		PolicyID: 1, Owner: owner, Premium: 500, Coverage: 10_000,
		DurationDays: 90, LocationKey: "region-a", Start: start, End: start.AddDate(0, 0, 90),
	}
	payload, _ := json.Marshal(created)

	location := "region-a"
	writer := persistence.NewEventLogWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	err = writer.WriteEventBatch(ctx, tx, []persistence.EventRow{{
		Sequence:       1,
		EventType:      created.EventType().String(),
		IdempotencyKey: created.IdempotencyKey(),
		Location:       &location,
		Payload:        payload,
		StateHash:      make([]byte, 32),
		PrevHash:       make([]byte, 32),
		Timestamp:      start,
	}})
	if err != nil {
		t.Fatalf("WriteEventBatch failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := projection.Rebuild(ctx, db, zerolog.Nop()); err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}

	p, err := query.NewService(db).GetPolicy(ctx, 1)
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p == nil || p.Coverage != 10_000 || !p.Active {
		t.Fatalf("rebuild did not restore the policy: %+v", p)
	}
}
