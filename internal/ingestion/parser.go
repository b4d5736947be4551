package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MeasurementMessage is a validated feed publication, ready for the feed
// worker to wrap into an engine command.
type MeasurementMessage struct {
	PublicationID uuid.UUID
	Location      string
	Value         int64
	FeedSequence  int64
	PublishedAt   time.Time
}

// measurementJSON is the wire format received from NATS.
// Field names use snake_case to match upstream producers.
type measurementJSON struct {
	PublicationID string `json:"publication_id"`
	Location      string `json:"location"`
	Value         *int64 `json:"value"`
	FeedSequence  int64  `json:"feed_sequence"`
	TimestampUs   int64  `json:"timestamp_us"`
}

// ParseMeasurement validates and converts a raw feed message.
func ParseMeasurement(data []byte) (*MeasurementMessage, error) {
	var j measurementJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse measurement: %w", err)
	}

	pubID, err := uuid.Parse(j.PublicationID)
	if err != nil {
		return nil, fmt.Errorf("parse publication_id: %w", err)
	}

	if strings.TrimSpace(j.Location) == "" {
		return nil, fmt.Errorf("measurement %s: empty location", pubID)
	}
	if j.Value == nil {
		return nil, fmt.Errorf("measurement %s: missing value", pubID)
	}
	if j.FeedSequence < 0 {
		return nil, fmt.Errorf("measurement %s: negative feed_sequence %d", pubID, j.FeedSequence)
	}

	publishedAt := time.Now()
	if j.TimestampUs > 0 {
		publishedAt = time.UnixMicro(j.TimestampUs)
	}

	return &MeasurementMessage{
		PublicationID: pubID,
		Location:      j.Location,
		Value:         *j.Value,
		FeedSequence:  j.FeedSequence,
		PublishedAt:   publishedAt,
	}, nil
}
