package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"DroughtLedger/internal/event"
	"DroughtLedger/internal/testutil"

	"github.com/google/uuid"
)

func TestIdempotencyKeys_StablePerEntity(t *testing.T) {
	pubID := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

	cases := []struct {
		ev   event.Event
		want string
	}{
		{&event.PolicyCreated{PolicyID: 7}, "policy_created:7"},
		{&event.ClaimProcessed{PolicyID: 7}, "claim_processed:7"},
		{&event.PolicyDeactivated{PolicyID: 7}, "policy_deactivated:7"},
		{&event.MeasurementPublished{PublicationID: pubID}, "measurement:550e8400-e29b-41d4-a716-446655440000"},
		{&event.ExcessWithdrawn{WithdrawalID: pubID}, "withdrawal:550e8400-e29b-41d4-a716-446655440000"},
	}

	for _, tc := range cases {
		if got := tc.ev.IdempotencyKey(); got != tc.want {
			t.Errorf("%T: got %q, want %q", tc.ev, got, tc.want)
		}
	}
}

func TestTypeNames_RoundTrip(t *testing.T) {
	types := []event.Type{
		event.TypePolicyCreated,
		event.TypeMeasurementPublished,
		event.TypeClaimProcessed,
		event.TypePolicyDeactivated,
		event.TypeExcessWithdrawn,
	}
	for _, typ := range types {
		if got := event.ParseType(typ.String()); got != typ {
			t.Errorf("ParseType(%q) = %d, want %d", typ.String(), got, typ)
		}
	}

	if event.ParseType("Bogus") != event.TypeUnknown {
		t.Error("unknown names must map to TypeUnknown")
	}
}

func TestLocation_NilForPoolLevelEvents(t *testing.T) {
	if (&event.PolicyDeactivated{}).Location() != nil {
		t.Error("PolicyDeactivated carries no location")
	}
	if (&event.ExcessWithdrawn{}).Location() != nil {
		t.Error("ExcessWithdrawn carries no location")
	}
	if (&event.PolicyCreated{LocationKey: "region-a"}).Location() == nil {
		t.Error("PolicyCreated must carry its location")
	}
}

// The payload encoding is part of the on-disk log format; a change here
// breaks replay of existing logs.
func TestPolicyCreated_WireFormat(t *testing.T) {
	ev := &event.PolicyCreated{
		PolicyID:     1,
		Owner:        uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Premium:      500,
		Coverage:     10000,
		DurationDays: 90,
		LocationKey:  "region-a",
		Start:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		End:          time.Date(2026, 5, 30, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	testutil.AssertGolden(t, "policy_created.json", data)

	var decoded event.PolicyCreated
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != *ev {
		t.Errorf("round trip changed the event: %+v", decoded)
	}
}

func TestMeasurementPublished_WireFormat(t *testing.T) {
	ev := &event.MeasurementPublished{
		PublicationID: uuid.MustParse("650e8400-e29b-41d4-a716-446655440001"),
		LocationKey:   "region-a",
		Value:         42,
		FeedSequence:  7,
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	testutil.AssertGolden(t, "measurement_published.json", data)
}
