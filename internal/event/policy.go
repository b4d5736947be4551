package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PolicyCreated is appended when a purchase commits.
type PolicyCreated struct {
	PolicyID     int64     `json:"policy_id"`
	Owner        uuid.UUID `json:"owner"`
	Premium      int64     `json:"premium"`
	Coverage     int64     `json:"coverage"`
	DurationDays int       `json:"duration_days"`
	LocationKey  string    `json:"location"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
}

func (e *PolicyCreated) IdempotencyKey() string {
	return fmt.Sprintf("policy_created:%d", e.PolicyID)
}

func (e *PolicyCreated) EventType() Type {
	return TypePolicyCreated
}

func (e *PolicyCreated) Location() *string {
	return &e.LocationKey
}

// ClaimProcessed is appended when a claim settles. Payout equals the
// policy's coverage amount; a policy settles at most once.
type ClaimProcessed struct {
	PolicyID    int64     `json:"policy_id"`
	Owner       uuid.UUID `json:"owner"`
	Payout      int64     `json:"payout"`
	LocationKey string    `json:"location"`
	Reading     int64     `json:"reading"`
}

func (e *ClaimProcessed) IdempotencyKey() string {
	return fmt.Sprintf("claim_processed:%d", e.PolicyID)
}

func (e *ClaimProcessed) EventType() Type {
	return TypeClaimProcessed
}

func (e *ClaimProcessed) Location() *string {
	return &e.LocationKey
}

// PolicyDeactivated is appended on administrative deactivation.
// The policy keeps its id and is never settled afterwards.
type PolicyDeactivated struct {
	PolicyID  int64     `json:"policy_id"`
	Authority uuid.UUID `json:"authority"`
}

func (e *PolicyDeactivated) IdempotencyKey() string {
	return fmt.Sprintf("policy_deactivated:%d", e.PolicyID)
}

func (e *PolicyDeactivated) EventType() Type {
	return TypePolicyDeactivated
}

func (e *PolicyDeactivated) Location() *string {
	return nil
}
