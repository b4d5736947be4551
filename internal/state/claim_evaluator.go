package state

import (
	"time"

	"DroughtLedger/internal/domain"

	"github.com/google/uuid"
)

// ClaimEvaluator decides claim eligibility. Evaluation is pure: it reads the
// policy, the latest measurement, and the pool balance, and never mutates
// anything. The engine pairs a nil result with the debit + settle mutation
// inside the same command.
type ClaimEvaluator struct{}

func NewClaimEvaluator() *ClaimEvaluator {
	return &ClaimEvaluator{}
}

// Evaluate returns nil when the claim is eligible, or the first failing
// check as a coded error. The check order is fixed: ownership, lifecycle
// flags, window start, window end, drought trigger, pool funds.
//
// Settlement clears the active flag, so the settled check must come first
// or a re-claimed policy would report the generic inactive rejection.
func (ce *ClaimEvaluator) Evaluate(
	p domain.Policy,
	caller uuid.UUID,
	reading int64,
	readingKnown bool,
	poolBalance int64,
	now time.Time,
) error {
	if caller != p.Owner {
		return domain.Errorf(domain.CodeUnauthorized, "caller %s does not own policy %d", caller, p.ID)
	}
	if p.Settled {
		return domain.Errorf(domain.CodeAlreadySettled, "policy %d was already paid out", p.ID)
	}
	if !p.Active {
		return domain.Errorf(domain.CodePolicyInactive, "policy %d is not active", p.ID)
	}
	if now.Before(p.Start) {
		return domain.Errorf(domain.CodeNotYetActive, "policy %d starts at %s", p.ID, p.Start.Format(time.RFC3339))
	}
	if now.After(p.End) {
		return domain.Errorf(domain.CodeExpired, "policy %d ended at %s", p.ID, p.End.Format(time.RFC3339))
	}
	// Unknown locations are pending data, not droughts. A published reading
	// must be strictly below the threshold; equality does not pay out.
	if !readingKnown {
		return domain.Errorf(domain.CodeThresholdNotMet, "no measurement published for location %q", p.Location)
	}
	if reading >= domain.DroughtThreshold {
		return domain.Errorf(domain.CodeThresholdNotMet,
			"reading %d at %q is not below threshold %d", reading, p.Location, domain.DroughtThreshold)
	}
	if poolBalance < p.Coverage {
		return domain.Errorf(domain.CodeInsufficientFunds,
			"pool balance %d cannot cover payout %d", poolBalance, p.Coverage)
	}
	return nil
}
