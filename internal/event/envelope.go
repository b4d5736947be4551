package event

import (
	"time"
)

// Type discriminator for audit event payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypePolicyCreated
	TypeMeasurementPublished
	TypeClaimProcessed
	TypePolicyDeactivated
	TypeExcessWithdrawn
)

// Envelope wraps every event appended to the log. The log is append-only;
// envelopes are written once and never mutated.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable dedup key from the originating command
	IdempotencyKey string

	// Event type discriminator
	Type Type

	// Location context (nil for pool-level events)
	Location *string

	// Timestamp stamped by the shell that submitted the command
	Timestamp time.Time

	// JSON-encoded event-specific payload
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all audit payloads implement.
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() Type

	// Location returns the location context (nil for pool-level events)
	Location() *string
}

func (t Type) String() string {
	switch t {
	case TypePolicyCreated:
		return "PolicyCreated"
	case TypeMeasurementPublished:
		return "MeasurementPublished"
	case TypeClaimProcessed:
		return "ClaimProcessed"
	case TypePolicyDeactivated:
		return "PolicyDeactivated"
	case TypeExcessWithdrawn:
		return "ExcessWithdrawn"
	default:
		return "Unknown"
	}
}

// ParseType maps a stored event type name back to its discriminator.
func ParseType(name string) Type {
	switch name {
	case "PolicyCreated":
		return TypePolicyCreated
	case "MeasurementPublished":
		return TypeMeasurementPublished
	case "ClaimProcessed":
		return TypeClaimProcessed
	case "PolicyDeactivated":
		return TypePolicyDeactivated
	case "ExcessWithdrawn":
		return TypeExcessWithdrawn
	default:
		return TypeUnknown
	}
}
