package state_test

import (
	"testing"
	"time"

	"DroughtLedger/internal/domain"
	"DroughtLedger/internal/state"

	"github.com/google/uuid"
)

func eligiblePolicy(owner uuid.UUID) domain.Policy {
	return domain.Policy{
		ID:       1,
		Owner:    owner,
		Premium:  500,
		Coverage: 10_000,
		Start:    testNow.AddDate(0, 0, -10),
		End:      testNow.AddDate(0, 0, 80),
		Location: "region-a",
		Active:   true,
	}
}

func TestEvaluate_Eligible(t *testing.T) {
	ce := state.NewClaimEvaluator()
	owner := uuid.New()
	p := eligiblePolicy(owner)

	if err := ce.Evaluate(p, owner, 30, true, 10_000, testNow); err != nil {
		t.Fatalf("expected eligible, got %v", err)
	}
}

func TestEvaluate_RejectionCodes(t *testing.T) {
	ce := state.NewClaimEvaluator()
	owner := uuid.New()

	cases := []struct {
		name     string
		mutate   func(*domain.Policy)
		caller   uuid.UUID
		reading  int64
		known    bool
		pool     int64
		now      time.Time
		wantCode domain.Code
	}{
		{
			name:     "non-owner",
			caller:   uuid.New(),
			reading:  30, known: true, pool: 10_000, now: testNow,
			wantCode: domain.CodeUnauthorized,
		},
		{
			name:   "inactive",
			mutate: func(p *domain.Policy) { p.Active = false },
			caller: owner, reading: 30, known: true, pool: 10_000, now: testNow,
			wantCode: domain.CodePolicyInactive,
		},
		{
			name:   "before start",
			caller: owner, reading: 30, known: true, pool: 10_000,
			now:      testNow.AddDate(0, 0, -11),
			wantCode: domain.CodeNotYetActive,
		},
		{
			name:   "after end",
			caller: owner, reading: 30, known: true, pool: 10_000,
			now:      testNow.AddDate(0, 0, 81),
			wantCode: domain.CodeExpired,
		},
		{
			name:   "already settled",
			mutate: func(p *domain.Policy) { p.Settled = true; p.Active = false },
			caller: owner, reading: 30, known: true, pool: 10_000, now: testNow,
			wantCode: domain.CodeAlreadySettled,
		},
		{
			name:   "no reading published",
			caller: owner, reading: 0, known: false, pool: 10_000, now: testNow,
			wantCode: domain.CodeThresholdNotMet,
		},
		{
			name:   "reading equals threshold",
			caller: owner, reading: 50, known: true, pool: 10_000, now: testNow,
			wantCode: domain.CodeThresholdNotMet,
		},
		{
			name:   "pool short by one",
			caller: owner, reading: 30, known: true, pool: 9_999, now: testNow,
			wantCode: domain.CodeInsufficientFunds,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := eligiblePolicy(owner)
			if tc.mutate != nil {
				tc.mutate(&p)
			}
			err := ce.Evaluate(p, tc.caller, tc.reading, tc.known, tc.pool, tc.now)
			if !domain.IsCode(err, tc.wantCode) {
				t.Fatalf("expected code %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestEvaluate_ThresholdIsStrict(t *testing.T) {
	ce := state.NewClaimEvaluator()
	owner := uuid.New()
	p := eligiblePolicy(owner)

	if err := ce.Evaluate(p, owner, 49, true, 10_000, testNow); err != nil {
		t.Errorf("reading 49 should be eligible, got %v", err)
	}
	if err := ce.Evaluate(p, owner, 50, true, 10_000, testNow); !domain.IsCode(err, domain.CodeThresholdNotMet) {
		t.Errorf("reading 50 should be threshold_not_met, got %v", err)
	}
}

func TestEvaluate_WindowEndpointsInclusive(t *testing.T) {
	ce := state.NewClaimEvaluator()
	owner := uuid.New()
	p := eligiblePolicy(owner)

	if err := ce.Evaluate(p, owner, 30, true, 10_000, p.Start); err != nil {
		t.Errorf("claim at exact start should be eligible, got %v", err)
	}
	if err := ce.Evaluate(p, owner, 30, true, 10_000, p.End); err != nil {
		t.Errorf("claim at exact end should be eligible, got %v", err)
	}
	if err := ce.Evaluate(p, owner, 30, true, 10_000, p.End.Add(time.Nanosecond)); !domain.IsCode(err, domain.CodeExpired) {
		t.Errorf("claim just past end should be expired, got %v", err)
	}
}

// Ownership is checked before the window, so a stranger probing an expired
// policy learns nothing about its dates.
func TestEvaluate_OwnershipCheckedFirst(t *testing.T) {
	ce := state.NewClaimEvaluator()
	owner := uuid.New()
	p := eligiblePolicy(owner)
	p.Active = false
	p.Settled = true

	err := ce.Evaluate(p, uuid.New(), 50, true, 0, testNow.AddDate(1, 0, 0))
	if !domain.IsCode(err, domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized to win over all other rejections, got %v", err)
	}
}

func TestEvaluate_ExactPoolBalanceSufficient(t *testing.T) {
	ce := state.NewClaimEvaluator()
	owner := uuid.New()
	p := eligiblePolicy(owner)

	if err := ce.Evaluate(p, owner, 30, true, p.Coverage, testNow); err != nil {
		t.Fatalf("pool exactly equal to coverage should pay, got %v", err)
	}
}
