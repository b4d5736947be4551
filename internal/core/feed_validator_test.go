package core_test

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"DroughtLedger/internal/core"
)

func TestFeedValidator_ZeroSequenceAlwaysApplies(t *testing.T) {
	fv := core.NewFeedValidator()

	for i := 0; i < 3; i++ {
		ok, err := fv.Validate("region-a", 0)
		if err != nil || !ok {
			t.Fatalf("unsequenced publication %d: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestFeedValidator_StaleAndEqualSkipped(t *testing.T) {
	fv := core.NewFeedValidator()

	if ok, _ := fv.Validate("region-a", 5); !ok {
		t.Fatal("first sequence should apply")
	}
	if ok, _ := fv.Validate("region-a", 5); ok {
		t.Error("equal sequence should be skipped")
	}
	if ok, _ := fv.Validate("region-a", 3); ok {
		t.Error("stale sequence should be skipped")
	}
}

func TestFeedValidator_GapsAccepted(t *testing.T) {
	fv := core.NewFeedValidator()

	fv.Validate("region-a", 1)
	ok, err := fv.Validate("region-a", 100)
	if err != nil || !ok {
		t.Fatalf("gap jump should apply: ok=%v err=%v", ok, err)
	}
}

func TestFeedValidator_NegativeSequence(t *testing.T) {
	fv := core.NewFeedValidator()

	if _, err := fv.Validate("region-a", -1); err == nil {
		t.Fatal("negative sequence should error")
	}
}

func TestFeedValidator_LocationsIndependent(t *testing.T) {
	fv := core.NewFeedValidator()

	fv.Validate("region-a", 10)
	if ok, _ := fv.Validate("region-b", 1); !ok {
		t.Error("watermarks must be per location")
	}
}

func TestFeedValidator_SnapshotRoundTrip(t *testing.T) {
	fv := core.NewFeedValidator()
	fv.Validate("region-a", 10)
	fv.Validate("region-b", 3)

	restored := core.NewFeedValidator()
	for loc, seq := range fv.Snapshot() {
		restored.Restore(loc, seq)
	}

	if ok, _ := restored.Validate("region-a", 10); ok {
		t.Error("restored watermark should reject sequence 10")
	}
	if ok, _ := restored.Validate("region-a", 11); !ok {
		t.Error("restored watermark should accept sequence 11")
	}
}

// ============================================================================
// Test: MeasurementDeduper
// ============================================================================

type fakeDBChecker struct {
	known map[string]bool
	calls int
}

func (f *fakeDBChecker) IsDuplicate(eventType, idempotencyKey string) (bool, error) {
	f.calls++
	return f.known[eventType+":"+idempotencyKey], nil
}

func TestDeduper_LRUHit(t *testing.T) {
	db := &fakeDBChecker{known: map[string]bool{}}
	md := core.NewMeasurementDeduper(10, db)

	md.MarkProcessed("measurement_published", "measurement:abc")
	if !md.IsDuplicate("measurement_published", "measurement:abc") {
		t.Fatal("marked key should be a duplicate")
	}
	if db.calls != 0 {
		t.Errorf("LRU hit must not reach the cold path, got %d calls", db.calls)
	}
}

func TestDeduper_ColdPathFallback(t *testing.T) {
	db := &fakeDBChecker{known: map[string]bool{
		"measurement_published:measurement:old": true,
	}}
	md := core.NewMeasurementDeduper(10, db)

	if !md.IsDuplicate("measurement_published", "measurement:old") {
		t.Fatal("key known to the event log should be a duplicate")
	}
	// The cold hit is promoted into the LRU.
	if !md.IsDuplicate("measurement_published", "measurement:old") {
		t.Fatal("promoted key should stay a duplicate")
	}
	if db.calls != 1 {
		t.Errorf("expected a single cold lookup, got %d", db.calls)
	}
}

func TestDeduper_EvictsOldest(t *testing.T) {
	md := core.NewMeasurementDeduper(3, nil)

	for i := 0; i < 4; i++ {
		md.MarkProcessed("measurement_published", fmt.Sprintf("measurement:%d", i))
	}

	if md.IsDuplicate("measurement_published", "measurement:0") {
		t.Error("oldest key should have been evicted")
	}
	if !md.IsDuplicate("measurement_published", "measurement:3") {
		t.Error("newest key should survive")
	}
}

func TestDeduper_Warm(t *testing.T) {
	md := core.NewMeasurementDeduper(10, nil)
	md.MarkProcessed("measurement_published", "measurement:a")
	md.MarkProcessed("measurement_published", "measurement:b")

	warmed := core.NewMeasurementDeduper(10, nil)
	warmed.Warm(md.Keys())

	if !warmed.IsDuplicate("measurement_published", "measurement:a") {
		t.Error("warmed key a should be a duplicate")
	}
	if !warmed.IsDuplicate("measurement_published", "measurement:b") {
		t.Error("warmed key b should be a duplicate")
	}
}

// ============================================================================
// Test: StateHasher
// ============================================================================

func TestStateHasher_ChainFromGenesis(t *testing.T) {
	h := core.NewStateHasher()

	genesis := sha256.Sum256([]byte(core.GenesisHashSeed))
	if h.GetPrevHash() != genesis {
		t.Fatal("fresh hasher should start at the genesis hash")
	}

	first := h.ComputeHash(1, []byte("digest-1"))
	if h.GetPrevHash() != first {
		t.Fatal("ComputeHash must advance the chain tip")
	}

	second := h.ComputeHash(2, []byte("digest-2"))
	if second == first {
		t.Fatal("consecutive hashes must differ")
	}
}

func TestStateHasher_Deterministic(t *testing.T) {
	run := func() [32]byte {
		h := core.NewStateHasher()
		h.ComputeHash(1, []byte("digest-1"))
		return h.ComputeHash(2, []byte("digest-2"))
	}
	if run() != run() {
		t.Fatal("identical inputs must produce identical chains")
	}
}

func TestStateHasher_SetPrevHashResumesChain(t *testing.T) {
	h := core.NewStateHasher()
	h.ComputeHash(1, []byte("digest-1"))
	tip := h.ComputeHash(2, []byte("digest-2"))

	resumed := core.NewStateHasher()
	resumed.SetPrevHash(tip)

	want := h.ComputeHash(3, []byte("digest-3"))
	got := resumed.ComputeHash(3, []byte("digest-3"))
	if got != want {
		t.Fatal("resumed chain must continue identically")
	}
}
