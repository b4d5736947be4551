package ingestion_test

import (
	"testing"
	"time"

	"DroughtLedger/internal/ingestion"
)

func TestParseMeasurement_Valid(t *testing.T) {
	data := []byte(`{
		"publication_id": "550e8400-e29b-41d4-a716-446655440000",
		"location": "region-a",
		"value": 42,
		"feed_sequence": 7,
		"timestamp_us": 1700000000000000
	}`)

	msg, err := ingestion.ParseMeasurement(data)
	if err != nil {
		t.Fatalf("ParseMeasurement failed: %v", err)
	}
	if msg.PublicationID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("wrong publication id: %s", msg.PublicationID)
	}
	if msg.Location != "region-a" {
		t.Errorf("wrong location: %q", msg.Location)
	}
	if msg.Value != 42 {
		t.Errorf("wrong value: %d", msg.Value)
	}
	if msg.FeedSequence != 7 {
		t.Errorf("wrong feed sequence: %d", msg.FeedSequence)
	}
	if !msg.PublishedAt.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("wrong published_at: %s", msg.PublishedAt)
	}
}

func TestParseMeasurement_ZeroValueIsValid(t *testing.T) {
	data := []byte(`{
		"publication_id": "550e8400-e29b-41d4-a716-446655440000",
		"location": "region-a",
		"value": 0
	}`)

	msg, err := ingestion.ParseMeasurement(data)
	if err != nil {
		t.Fatalf("a zero reading is a valid drought signal: %v", err)
	}
	if msg.Value != 0 {
		t.Errorf("wrong value: %d", msg.Value)
	}
}

func TestParseMeasurement_Invalid(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"malformed json", `{`},
		{"missing publication_id", `{"location": "region-a", "value": 42}`},
		{"bad publication_id", `{"publication_id": "not-a-uuid", "location": "region-a", "value": 42}`},
		{"empty location", `{"publication_id": "550e8400-e29b-41d4-a716-446655440000", "location": "", "value": 42}`},
		{"whitespace location", `{"publication_id": "550e8400-e29b-41d4-a716-446655440000", "location": "  ", "value": 42}`},
		{"missing value", `{"publication_id": "550e8400-e29b-41d4-a716-446655440000", "location": "region-a"}`},
		{"negative feed_sequence", `{"publication_id": "550e8400-e29b-41d4-a716-446655440000", "location": "region-a", "value": 42, "feed_sequence": -1}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ingestion.ParseMeasurement([]byte(tc.data)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestParseMeasurement_MissingTimestampDefaultsToNow(t *testing.T) {
	data := []byte(`{
		"publication_id": "550e8400-e29b-41d4-a716-446655440000",
		"location": "region-a",
		"value": 42
	}`)

	before := time.Now()
	msg, err := ingestion.ParseMeasurement(data)
	if err != nil {
		t.Fatalf("ParseMeasurement failed: %v", err)
	}
	if msg.PublishedAt.Before(before) {
		t.Errorf("published_at %s should default to receive time", msg.PublishedAt)
	}
}
