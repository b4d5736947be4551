package core

import (
	"fmt"
)

// FeedValidator tracks the measurement feed's sequence per location.
// Readings are latest-value-wins, so gaps are tolerated the way a price
// feed tolerates them: stale sequences are ignored, jumps are accepted.
// Not thread-safe — only accessed from the single-threaded engine.
type FeedValidator struct {
	lastSeq map[string]int64 // location -> last accepted feed sequence
}

func NewFeedValidator() *FeedValidator {
	return &FeedValidator{
		lastSeq: make(map[string]int64),
	}
}

// Validate reports whether a feed publication should be applied.
// A zero feedSequence means the publication is unsequenced (direct API
// call) and is always applied.
func (fv *FeedValidator) Validate(location string, feedSequence int64) (bool, error) {
	if feedSequence == 0 {
		return true, nil
	}
	if feedSequence < 0 {
		return false, fmt.Errorf("negative feed sequence %d for %q", feedSequence, location)
	}

	last := fv.lastSeq[location]
	if feedSequence <= last {
		// Stale delivery — skip, the store already holds a newer reading
		return false, nil
	}

	fv.lastSeq[location] = feedSequence
	return true, nil
}

// Snapshot returns the per-location sequence watermarks for persistence.
func (fv *FeedValidator) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(fv.lastSeq))
	for loc, seq := range fv.lastSeq {
		out[loc] = seq
	}
	return out
}

// Restore sets a location's watermark during snapshot restore.
func (fv *FeedValidator) Restore(location string, seq int64) {
	fv.lastSeq[location] = seq
}
