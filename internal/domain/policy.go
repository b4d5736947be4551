package domain

import (
	"time"

	"github.com/google/uuid"
)

// Drought trigger and policy limits. Amounts are integer currency units,
// readings are integer millimeters.
const (
	// DroughtThreshold is the reading below which a claim becomes eligible.
	// The comparison is strict: a reading equal to the threshold does not pay out.
	DroughtThreshold int64 = 50

	MinDurationDays = 30
	MaxDurationDays = 365

	// MinPremiumPercent is the minimum premium as a percentage of coverage.
	MinPremiumPercent int64 = 5
)

// Policy is a single insurance contract between one principal and the pool.
type Policy struct {
	ID       int64
	Owner    uuid.UUID
	Premium  int64
	Coverage int64
	Start    time.Time
	End      time.Time
	Location string
	Active   bool
	Settled  bool
}

// InWindow reports whether now falls inside the policy's coverage window.
// Both endpoints are inclusive.
func (p Policy) InWindow(now time.Time) bool {
	return !now.Before(p.Start) && !now.After(p.End)
}

// MinPremium returns the smallest accepted premium for a coverage amount,
// rounding up so that paying one unit less than 5% always fails. The
// percentage is taken on the quotient and remainder separately; multiplying
// the coverage directly would wrap for values near the int64 ceiling.
func MinPremium(coverage int64) int64 {
	min := (coverage / 100) * MinPremiumPercent
	rem := (coverage % 100) * MinPremiumPercent
	return min + (rem+99)/100
}

// Measurement is the latest published reading for a location.
type Measurement struct {
	Location    string
	Value       int64
	PublishedAt time.Time
}
