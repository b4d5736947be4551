package state

import (
	"math"
	"strings"
	"time"

	"DroughtLedger/internal/domain"

	"github.com/google/uuid"
)

// PolicyLedger owns all policy records and the per-owner index.
// Not thread-safe — only accessed from the single-threaded engine.
type PolicyLedger struct {
	policies   map[int64]*domain.Policy
	ownerIndex map[uuid.UUID][]int64
	nextID     int64
}

func NewPolicyLedger() *PolicyLedger {
	return &PolicyLedger{
		policies:   make(map[int64]*domain.Policy),
		ownerIndex: make(map[uuid.UUID][]int64),
		nextID:     1,
	}
}

// ValidatePurchase checks every purchase precondition without committing.
func (pl *PolicyLedger) ValidatePurchase(coverage int64, durationDays int, location string, paid int64) error {
	if paid <= 0 {
		return domain.Errorf(domain.CodeInvalidParameters, "paid amount must be positive, got %d", paid)
	}
	if coverage <= 0 {
		return domain.Errorf(domain.CodeInvalidParameters, "coverage must be positive, got %d", coverage)
	}
	if durationDays < domain.MinDurationDays || durationDays > domain.MaxDurationDays {
		return domain.Errorf(domain.CodeInvalidParameters,
			"duration must be %d-%d days, got %d", domain.MinDurationDays, domain.MaxDurationDays, durationDays)
	}
	if strings.TrimSpace(location) == "" {
		return domain.Errorf(domain.CodeInvalidParameters, "location must be non-empty")
	}
	if min := domain.MinPremium(coverage); paid < min {
		return domain.Errorf(domain.CodeInvalidParameters,
			"premium %d below minimum %d (%d%% of coverage)", paid, min, domain.MinPremiumPercent)
	}
	return nil
}

// Create validates a purchase request and records a new policy.
// Nothing is committed when any precondition fails.
func (pl *PolicyLedger) Create(
	owner uuid.UUID,
	coverage int64,
	durationDays int,
	location string,
	paid int64,
	now time.Time,
) (int64, error) {
	if err := pl.ValidatePurchase(coverage, durationDays, location, paid); err != nil {
		return 0, err
	}

	id := pl.nextID
	pl.nextID++

	pl.policies[id] = &domain.Policy{
		ID:       id,
		Owner:    owner,
		Premium:  paid,
		Coverage: coverage,
		Start:    now,
		End:      now.AddDate(0, 0, durationDays),
		Location: location,
		Active:   true,
		Settled:  false,
	}
	pl.ownerIndex[owner] = append(pl.ownerIndex[owner], id)

	return id, nil
}

// Get returns a copy of the policy. Ids are monotonic from 1 and never
// reused, so anything outside the issued range is unknown.
func (pl *PolicyLedger) Get(id int64) (domain.Policy, error) {
	p, ok := pl.policies[id]
	if !ok {
		return domain.Policy{}, domain.Errorf(domain.CodeNotFound, "policy %d does not exist", id)
	}
	return *p, nil
}

// IDsForOwner returns the owner's policy ids in insertion order.
// The returned slice is a copy; an unknown owner yields an empty slice.
func (pl *PolicyLedger) IDsForOwner(owner uuid.UUID) []int64 {
	ids := pl.ownerIndex[owner]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}

// MarkSettled flags a policy as paid out. A settled policy is inactive and
// immutable from then on.
func (pl *PolicyLedger) MarkSettled(id int64) error {
	p, ok := pl.policies[id]
	if !ok {
		return domain.Errorf(domain.CodeNotFound, "policy %d does not exist", id)
	}
	if !p.Active {
		return domain.Errorf(domain.CodePolicyInactive, "policy %d is not active", id)
	}
	p.Settled = true
	p.Active = false
	return nil
}

// MarkDeactivated turns a policy off without settling it.
func (pl *PolicyLedger) MarkDeactivated(id int64) error {
	p, ok := pl.policies[id]
	if !ok {
		return domain.Errorf(domain.CodeNotFound, "policy %d does not exist", id)
	}
	if !p.Active {
		return domain.Errorf(domain.CodePolicyInactive, "policy %d is not active", id)
	}
	p.Active = false
	return nil
}

// Count returns the number of issued policies.
func (pl *PolicyLedger) Count() int {
	return len(pl.policies)
}

// OutstandingCoverage sums the coverage of all active, unsettled policies.
// Used by the optional purchase-time solvency check. The sum saturates at
// the int64 ceiling so a huge book reads as unbounded exposure rather than
// wrapping negative.
func (pl *PolicyLedger) OutstandingCoverage() int64 {
	var total int64
	for _, p := range pl.policies {
		if p.Active && !p.Settled {
			if p.Coverage > math.MaxInt64-total {
				return math.MaxInt64
			}
			total += p.Coverage
		}
	}
	return total
}

// Snapshot returns copies of all policies for persistence.
func (pl *PolicyLedger) Snapshot() []domain.Policy {
	out := make([]domain.Policy, 0, len(pl.policies))
	for _, p := range pl.policies {
		out = append(out, *p)
	}
	return out
}

// Restore installs a policy record directly. Used only during snapshot
// restore and event replay; bypasses purchase validation.
func (pl *PolicyLedger) Restore(p domain.Policy) {
	cp := p
	pl.policies[p.ID] = &cp
	if p.ID >= pl.nextID {
		pl.nextID = p.ID + 1
	}
}

// RestoreOwnerIndex installs an owner's id sequence during snapshot restore.
func (pl *PolicyLedger) RestoreOwnerIndex(owner uuid.UUID, ids []int64) {
	cp := make([]int64, len(ids))
	copy(cp, ids)
	pl.ownerIndex[owner] = cp
}

// AppendOwnerIndex appends one id during event replay.
func (pl *PolicyLedger) AppendOwnerIndex(owner uuid.UUID, id int64) {
	pl.ownerIndex[owner] = append(pl.ownerIndex[owner], id)
}

// OwnerIndexSnapshot returns a copy of the full owner index for persistence.
func (pl *PolicyLedger) OwnerIndexSnapshot() map[uuid.UUID][]int64 {
	out := make(map[uuid.UUID][]int64, len(pl.ownerIndex))
	for owner, ids := range pl.ownerIndex {
		cp := make([]int64, len(ids))
		copy(cp, ids)
		out[owner] = cp
	}
	return out
}
