package event

import (
	"fmt"

	"github.com/google/uuid"
)

// MeasurementPublished is appended when the authority publishes a reading.
// PublicationID is the upstream feed's stable id, used for dedup when the
// same publication is redelivered by NATS.
type MeasurementPublished struct {
	PublicationID uuid.UUID `json:"publication_id"`
	LocationKey   string    `json:"location"`
	Value         int64     `json:"value"`
	FeedSequence  int64     `json:"feed_sequence"`
}

func (e *MeasurementPublished) IdempotencyKey() string {
	return fmt.Sprintf("measurement:%s", e.PublicationID)
}

func (e *MeasurementPublished) EventType() Type {
	return TypeMeasurementPublished
}

func (e *MeasurementPublished) Location() *string {
	return &e.LocationKey
}

// ExcessWithdrawn is appended when the authority drains the pool.
type ExcessWithdrawn struct {
	WithdrawalID uuid.UUID `json:"withdrawal_id"`
	Authority    uuid.UUID `json:"authority"`
	Amount       int64     `json:"amount"`
}

func (e *ExcessWithdrawn) IdempotencyKey() string {
	return fmt.Sprintf("withdrawal:%s", e.WithdrawalID)
}

func (e *ExcessWithdrawn) EventType() Type {
	return TypeExcessWithdrawn
}

func (e *ExcessWithdrawn) Location() *string {
	return nil
}
