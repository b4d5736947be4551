package core

import (
	"time"

	"github.com/google/uuid"
)

// Command is a single operation submitted to the engine. Commands carry the
// caller principal resolved by the surrounding auth layer and the timestamp
// stamped by the submitting shell — the engine itself never reads the clock.
type Command interface {
	commandName() string
}

// PurchasePolicy creates a policy and credits the premium to the pool.
type PurchasePolicy struct {
	Buyer        uuid.UUID
	Coverage     int64
	DurationDays int
	Location     string
	Paid         int64
	Now          time.Time
}

// ProcessClaim evaluates and, if eligible, settles a claim in one atomic step.
type ProcessClaim struct {
	Caller   uuid.UUID
	PolicyID int64
	Now      time.Time
}

// UpdateMeasurement publishes the latest reading for a location.
// FeedSequence is the upstream feed's ordering key; zero for direct API
// publications. PublicationID deduplicates redeliveries.
type UpdateMeasurement struct {
	Caller        uuid.UUID
	PublicationID uuid.UUID
	Location      string
	Value         int64
	FeedSequence  int64
	Now           time.Time
}

// WithdrawExcess drains the entire pool balance to the authority.
type WithdrawExcess struct {
	Caller       uuid.UUID
	WithdrawalID uuid.UUID
	Now          time.Time
}

// DeactivatePolicy administratively turns a policy off without settling it.
type DeactivatePolicy struct {
	Caller   uuid.UUID
	PolicyID int64
	Now      time.Time
}

// GetPolicy reads one policy record.
type GetPolicy struct {
	PolicyID int64
}

// GetPoliciesForOwner reads an owner's policy ids in insertion order.
type GetPoliciesForOwner struct {
	Owner uuid.UUID
}

// GetPoolBalance reads the current pool balance.
type GetPoolBalance struct{}

// TakeSnapshot captures the full in-memory state. Routing it through the
// command loop guarantees a consistent cut with no command half-applied.
type TakeSnapshot struct{}

func (PurchasePolicy) commandName() string      { return "purchase_policy" }
func (ProcessClaim) commandName() string        { return "process_claim" }
func (UpdateMeasurement) commandName() string   { return "update_measurement" }
func (WithdrawExcess) commandName() string      { return "withdraw_excess" }
func (DeactivatePolicy) commandName() string    { return "deactivate_policy" }
func (GetPolicy) commandName() string           { return "get_policy" }
func (GetPoliciesForOwner) commandName() string { return "get_policies_for_owner" }
func (GetPoolBalance) commandName() string      { return "get_pool_balance" }
func (TakeSnapshot) commandName() string        { return "take_snapshot" }
