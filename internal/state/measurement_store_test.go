package state_test

import (
	"testing"

	"DroughtLedger/internal/state"
)

func TestMeasurementStore_UnknownLocation(t *testing.T) {
	ms := state.NewMeasurementStore()

	value, ok := ms.Read("nowhere")
	if ok {
		t.Fatal("unknown location must report ok=false")
	}
	if value != 0 {
		t.Fatalf("unknown location value should be 0, got %d", value)
	}
}

func TestMeasurementStore_LatestValueWins(t *testing.T) {
	ms := state.NewMeasurementStore()

	ms.Publish("region-a", 80, testNow)
	ms.Publish("region-a", 35, testNow.Add(1))

	value, ok := ms.Read("region-a")
	if !ok {
		t.Fatal("expected a reading for region-a")
	}
	if value != 35 {
		t.Fatalf("expected latest value 35, got %d", value)
	}
}

func TestMeasurementStore_LocationsIndependent(t *testing.T) {
	ms := state.NewMeasurementStore()

	ms.Publish("region-a", 20, testNow)
	ms.Publish("region-b", 90, testNow)

	if v, _ := ms.Read("region-a"); v != 20 {
		t.Errorf("region-a: expected 20, got %d", v)
	}
	if v, _ := ms.Read("region-b"); v != 90 {
		t.Errorf("region-b: expected 90, got %d", v)
	}
}

func TestMeasurementStore_SnapshotRoundTrip(t *testing.T) {
	ms := state.NewMeasurementStore()
	ms.Publish("region-a", 20, testNow)
	ms.Publish("region-b", 90, testNow)

	restored := state.NewMeasurementStore()
	for _, m := range ms.Snapshot() {
		restored.Restore(m)
	}

	if v, ok := restored.Read("region-a"); !ok || v != 20 {
		t.Errorf("region-a after restore: ok=%v value=%d", ok, v)
	}
	if v, ok := restored.Read("region-b"); !ok || v != 90 {
		t.Errorf("region-b after restore: ok=%v value=%d", ok, v)
	}
}
