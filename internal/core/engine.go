package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"DroughtLedger/internal/domain"
	"DroughtLedger/internal/event"
	"DroughtLedger/internal/observability"
	"DroughtLedger/internal/state"

	"github.com/google/uuid"
)

// Engine is the single-threaded ledger core. All commands, mutations and
// reads alike, flow through one goroutine, so every command observes the
// full effect of every earlier command and no interleaving can double-pay
// a claim or overdraw the pool.
type Engine struct {
	sequence     int64
	hasher       *StateHasher
	policies     *state.PolicyLedger
	measurements *state.MeasurementStore
	pool         *state.FundPool
	evaluator    *state.ClaimEvaluator
	admin        *AdminController
	deduper      *MeasurementDeduper
	feed         *FeedValidator
	metrics      *observability.Metrics

	// Reject purchases the pool could not cover if every active policy
	// claimed at once. Off by default.
	requireSolvency bool

	requests chan request

	persistChan chan<- Output
	publishChan chan<- Output
}

// Output carries one committed event to the persistence and publish workers.
type Output struct {
	Envelope *event.Envelope
}

type request struct {
	cmd   Command
	reply chan result
}

type result struct {
	value any
	err   error
}

func NewEngine(
	startSequence int64,
	authority uuid.UUID,
	requireSolvency bool,
	persistChan, publishChan chan<- Output,
	dbChecker DBDedupChecker,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		sequence:        startSequence,
		hasher:          NewStateHasher(),
		policies:        state.NewPolicyLedger(),
		measurements:    state.NewMeasurementStore(),
		pool:            state.NewFundPool(),
		evaluator:       state.NewClaimEvaluator(),
		admin:           NewAdminController(authority),
		deduper:         NewMeasurementDeduper(100_000, dbChecker),
		feed:            NewFeedValidator(),
		metrics:         metrics,
		requireSolvency: requireSolvency,
		requests:        make(chan request, 256),
		persistChan:     persistChan,
		publishChan:     publishChan,
	}
}

// Run drains the request channel until the context is cancelled. It must be
// the only goroutine touching the engine's state.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.requests:
			value, err := e.apply(req.cmd)
			req.reply <- result{value: value, err: err}
		}
	}
}

func (e *Engine) submit(ctx context.Context, cmd Command) (any, error) {
	req := request{cmd: cmd, reply: make(chan result, 1)}

	select {
	case e.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Purchase submits a PurchasePolicy command and returns the new policy id.
func (e *Engine) Purchase(ctx context.Context, cmd PurchasePolicy) (int64, error) {
	v, err := e.submit(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Claim submits a ProcessClaim command and returns the payout amount.
func (e *Engine) Claim(ctx context.Context, cmd ProcessClaim) (int64, error) {
	v, err := e.submit(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// PublishMeasurement submits an UpdateMeasurement command. A duplicate or
// stale publication returns nil without touching state.
func (e *Engine) PublishMeasurement(ctx context.Context, cmd UpdateMeasurement) error {
	_, err := e.submit(ctx, cmd)
	return err
}

// Withdraw submits a WithdrawExcess command and returns the amount drained.
func (e *Engine) Withdraw(ctx context.Context, cmd WithdrawExcess) (int64, error) {
	v, err := e.submit(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Deactivate submits a DeactivatePolicy command.
func (e *Engine) Deactivate(ctx context.Context, cmd DeactivatePolicy) error {
	_, err := e.submit(ctx, cmd)
	return err
}

// Policy reads one policy record through the engine.
func (e *Engine) Policy(ctx context.Context, id int64) (domain.Policy, error) {
	v, err := e.submit(ctx, GetPolicy{PolicyID: id})
	if err != nil {
		return domain.Policy{}, err
	}
	return v.(domain.Policy), nil
}

// PoliciesForOwner reads an owner's policy ids in purchase order.
func (e *Engine) PoliciesForOwner(ctx context.Context, owner uuid.UUID) ([]int64, error) {
	v, err := e.submit(ctx, GetPoliciesForOwner{Owner: owner})
	if err != nil {
		return nil, err
	}
	return v.([]int64), nil
}

// PoolBalance reads the current pool balance through the engine.
func (e *Engine) PoolBalance(ctx context.Context) (int64, error) {
	v, err := e.submit(ctx, GetPoolBalance{})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Snapshot captures a consistent cut of the in-memory state through the
// command loop.
func (e *Engine) Snapshot(ctx context.Context) (*SnapshotState, error) {
	v, err := e.submit(ctx, TakeSnapshot{})
	if err != nil {
		return nil, err
	}
	return v.(*SnapshotState), nil
}

// apply executes one command against in-memory state. Called only from the
// Run goroutine (or directly in single-threaded tests and replay).
func (e *Engine) apply(cmd Command) (any, error) {
	start := time.Now()
	name := cmd.commandName()

	var value any
	var err error

	switch c := cmd.(type) {
	case PurchasePolicy:
		value, err = e.handlePurchase(c)
	case ProcessClaim:
		value, err = e.handleClaim(c)
	case UpdateMeasurement:
		value, err = nil, e.handleMeasurement(c)
	case WithdrawExcess:
		value, err = e.handleWithdraw(c)
	case DeactivatePolicy:
		value, err = nil, e.handleDeactivate(c)
	case GetPolicy:
		value, err = e.policies.Get(c.PolicyID)
	case GetPoliciesForOwner:
		value, err = e.policies.IDsForOwner(c.Owner), nil
	case GetPoolBalance:
		value, err = e.pool.Balance(), nil
	case TakeSnapshot:
		value, err = e.CreateSnapshotState(), nil
	default:
		err = fmt.Errorf("unknown command %T", cmd)
	}

	if e.metrics != nil {
		if err != nil {
			code := string(domain.CodeOf(err))
			if code == "" {
				code = "internal"
			}
			e.metrics.CommandsRejected.WithLabelValues(name, code).Inc()
		} else {
			e.metrics.CommandsApplied.WithLabelValues(name).Inc()
		}
		e.metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		e.metrics.EngineSequence.Set(float64(e.sequence))
		e.metrics.PoolBalance.Set(float64(e.pool.Balance()))
	}

	return value, err
}

func (e *Engine) handlePurchase(c PurchasePolicy) (int64, error) {
	// Validate first so the solvency check never masks a parameter error.
	if err := e.policies.ValidatePurchase(c.Coverage, c.DurationDays, c.Location, c.Paid); err != nil {
		return 0, err
	}
	if c.Paid > math.MaxInt64-e.pool.Balance() {
		return 0, domain.Errorf(domain.CodeInvalidParameters,
			"premium %d would wrap the pool balance %d", c.Paid, e.pool.Balance())
	}

	if e.requireSolvency {
		// The pool after crediting this premium must cover every active
		// policy's payout, including the one being bought. Exposure past
		// the int64 ceiling can never be covered, so reject it outright
		// instead of letting the sum wrap negative.
		after := e.pool.Balance() + c.Paid
		exposure := e.policies.OutstandingCoverage()
		if c.Coverage > math.MaxInt64-exposure {
			return 0, domain.Errorf(domain.CodeInsufficientFunds,
				"exposure %d plus coverage %d exceeds the representable pool", exposure, c.Coverage)
		}
		exposure += c.Coverage
		if after < exposure {
			return 0, domain.Errorf(domain.CodeInsufficientFunds,
				"pool %d after premium cannot cover exposure %d", after, exposure)
		}
	}

	id, err := e.policies.Create(c.Buyer, c.Coverage, c.DurationDays, c.Location, c.Paid, c.Now)
	if err != nil {
		return 0, err
	}
	e.pool.Credit(c.Paid)

	p, _ := e.policies.Get(id)
	e.emit(&event.PolicyCreated{
		PolicyID:     id,
		Owner:        c.Buyer,
		Premium:      c.Paid,
		Coverage:     c.Coverage,
		DurationDays: c.DurationDays,
		LocationKey:  c.Location,
		Start:        p.Start,
		End:          p.End,
	}, c.Now)

	if e.metrics != nil {
		e.metrics.PoliciesCreated.Inc()
		e.metrics.PremiumsTotal.Add(float64(c.Paid))
	}

	return id, nil
}

func (e *Engine) handleClaim(c ProcessClaim) (int64, error) {
	p, err := e.policies.Get(c.PolicyID)
	if err != nil {
		return 0, err
	}

	reading, known := e.measurements.Read(p.Location)

	if err := e.evaluator.Evaluate(p, c.Caller, reading, known, e.pool.Balance(), c.Now); err != nil {
		return 0, err
	}

	// Eligible: debit and settle in the same command. Evaluate checked the
	// balance, so a debit failure here is a broken invariant, not a rejection.
	if err := e.pool.Debit(p.Coverage); err != nil {
		panic(fmt.Sprintf("FATAL: eligible claim overdrew pool: %v", err))
	}
	if err := e.policies.MarkSettled(c.PolicyID); err != nil {
		panic(fmt.Sprintf("FATAL: eligible claim could not settle: %v", err))
	}

	e.emit(&event.ClaimProcessed{
		PolicyID:    c.PolicyID,
		Owner:       p.Owner,
		Payout:      p.Coverage,
		LocationKey: p.Location,
		Reading:     reading,
	}, c.Now)

	if e.metrics != nil {
		e.metrics.ClaimsSettled.Inc()
		e.metrics.PayoutsTotal.Add(float64(p.Coverage))
	}

	return p.Coverage, nil
}

func (e *Engine) handleMeasurement(c UpdateMeasurement) error {
	if err := e.admin.Authorize(c.Caller); err != nil {
		return err
	}

	ev := &event.MeasurementPublished{
		PublicationID: c.PublicationID,
		LocationKey:   c.Location,
		Value:         c.Value,
		FeedSequence:  c.FeedSequence,
	}

	// Redelivered publication: already in the log, nothing to do.
	if e.deduper.IsDuplicate(ev.EventType().String(), ev.IdempotencyKey()) {
		if e.metrics != nil {
			e.metrics.FeedDuplicates.Inc()
		}
		return nil
	}

	ok, err := e.feed.Validate(c.Location, c.FeedSequence)
	if err != nil {
		return domain.Errorf(domain.CodeInvalidParameters, "%v", err)
	}
	if !ok {
		// Stale feed sequence: a newer reading already landed.
		if e.metrics != nil {
			e.metrics.FeedStale.Inc()
		}
		return nil
	}

	e.measurements.Publish(c.Location, c.Value, c.Now)
	e.emit(ev, c.Now)
	e.deduper.MarkProcessed(ev.EventType().String(), ev.IdempotencyKey())

	if e.metrics != nil {
		e.metrics.MeasurementsPublished.Inc()
	}

	return nil
}

func (e *Engine) handleWithdraw(c WithdrawExcess) (int64, error) {
	if err := e.admin.Authorize(c.Caller); err != nil {
		return 0, err
	}

	amount, err := e.pool.WithdrawAll()
	if err != nil {
		return 0, err
	}

	e.emit(&event.ExcessWithdrawn{
		WithdrawalID: c.WithdrawalID,
		Authority:    c.Caller,
		Amount:       amount,
	}, c.Now)

	return amount, nil
}

func (e *Engine) handleDeactivate(c DeactivatePolicy) error {
	if err := e.admin.Authorize(c.Caller); err != nil {
		return err
	}

	if err := e.policies.MarkDeactivated(c.PolicyID); err != nil {
		return err
	}

	e.emit(&event.PolicyDeactivated{
		PolicyID:  c.PolicyID,
		Authority: c.Caller,
	}, c.Now)

	if e.metrics != nil {
		e.metrics.PoliciesDeactivated.Inc()
	}

	return nil
}

// emit appends one event to the log: assign the next sequence, extend the
// hash chain, and hand the envelope to the persistence and publish workers.
// Only called after all mutations for the command have been applied.
func (e *Engine) emit(ev event.Event, ts time.Time) {
	payload, err := json.Marshal(ev)
	if err != nil {
		panic(fmt.Sprintf("FATAL: marshal %s: %v", ev.EventType(), err))
	}

	e.sequence++

	digest := e.stateDigest(payload)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(e.sequence, digest)

	envelope := &event.Envelope{
		Sequence:       e.sequence,
		IdempotencyKey: ev.IdempotencyKey(),
		Type:           ev.EventType(),
		Location:       ev.Location(),
		Timestamp:      ts,
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := Output{Envelope: envelope}

	// Persistence: blocking send. The engine stalls until the persistence
	// worker drains, so no committed event can be lost.
	if e.persistChan != nil {
		e.persistChan <- output
	}

	// Outbound publish: non-blocking, drop on full. Subscribers can rebuild
	// from the event log.
	if e.publishChan != nil {
		select {
		case e.publishChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

// stateDigest builds the canonical bytes hashed into the chain: the pool
// balance, the policy count, and the event payload that moved them.
func (e *Engine) stateDigest(payload []byte) []byte {
	digest := make([]byte, 0, 16+len(payload))
	digest = appendInt64LE(digest, e.pool.Balance())
	digest = appendInt64LE(digest, int64(e.policies.Count()))
	digest = append(digest, payload...)
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// --- Recovery ---

// ReplayEvent re-applies a logged event's mutations without validation.
// Replay trusts the log: every event in it passed validation when it was
// first applied.
func (e *Engine) ReplayEvent(env *event.Envelope) error {
	switch env.Type {
	case event.TypePolicyCreated:
		var ev event.PolicyCreated
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}
		e.policies.Restore(domain.Policy{
			ID:       ev.PolicyID,
			Owner:    ev.Owner,
			Premium:  ev.Premium,
			Coverage: ev.Coverage,
			Start:    ev.Start,
			End:      ev.End,
			Location: ev.LocationKey,
			Active:   true,
		})
		e.policies.AppendOwnerIndex(ev.Owner, ev.PolicyID)
		e.pool.Credit(ev.Premium)

	case event.TypeMeasurementPublished:
		var ev event.MeasurementPublished
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}
		e.measurements.Publish(ev.LocationKey, ev.Value, env.Timestamp)
		if ev.FeedSequence > 0 {
			e.feed.Restore(ev.LocationKey, ev.FeedSequence)
		}
		e.deduper.MarkProcessed(env.Type.String(), env.IdempotencyKey)

	case event.TypeClaimProcessed:
		var ev event.ClaimProcessed
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}
		if err := e.pool.Debit(ev.Payout); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}
		if err := e.policies.MarkSettled(ev.PolicyID); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}

	case event.TypePolicyDeactivated:
		var ev event.PolicyDeactivated
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}
		if err := e.policies.MarkDeactivated(ev.PolicyID); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}

	case event.TypeExcessWithdrawn:
		var ev event.ExcessWithdrawn
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}
		if _, err := e.pool.WithdrawAll(); err != nil {
			return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
		}

	default:
		return fmt.Errorf("replay seq %d: unknown event type %d", env.Sequence, env.Type)
	}

	e.sequence = env.Sequence
	e.hasher.SetPrevHash(env.StateHash)
	return nil
}

// --- Snapshot ---

// SnapshotState holds the full serializable in-memory state for restore.
type SnapshotState struct {
	Sequence      int64
	StateHash     [32]byte
	Policies      []domain.Policy
	OwnerIndex    map[uuid.UUID][]int64
	Measurements  []domain.Measurement
	PoolBalance   int64
	FeedSequences map[string]int64
	DedupKeys     []string
}

// CreateSnapshotState captures the current in-memory state for persistence.
// Called from the Run goroutine's thread of control only.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:      e.sequence,
		StateHash:     e.hasher.GetPrevHash(),
		Policies:      e.policies.Snapshot(),
		OwnerIndex:    e.policies.OwnerIndexSnapshot(),
		Measurements:  e.measurements.Snapshot(),
		PoolBalance:   e.pool.Balance(),
		FeedSequences: e.feed.Snapshot(),
		DedupKeys:     e.deduper.Keys(),
	}
}

// RestoreFromSnapshot installs a snapshot's state. Must run before Run.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence
	e.hasher.SetPrevHash(snap.StateHash)

	for _, p := range snap.Policies {
		e.policies.Restore(p)
	}
	for owner, ids := range snap.OwnerIndex {
		e.policies.RestoreOwnerIndex(owner, ids)
	}
	for _, m := range snap.Measurements {
		e.measurements.Restore(m)
	}
	e.pool.Restore(snap.PoolBalance)
	for loc, seq := range snap.FeedSequences {
		e.feed.Restore(loc, seq)
	}
	e.deduper.Warm(snap.DedupKeys)
}

// GetSequence returns the current global sequence number.
func (e *Engine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the current hash chain tip.
func (e *Engine) GetStateHash() [32]byte {
	return e.hasher.GetPrevHash()
}

// Authority returns the configured admin principal.
func (e *Engine) Authority() uuid.UUID {
	return e.admin.Authority()
}
