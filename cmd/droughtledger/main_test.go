package main

import (
	"context"
	"testing"
	"time"

	"DroughtLedger/internal/core"
	"DroughtLedger/internal/event"
	"DroughtLedger/internal/ingestion"
	"DroughtLedger/internal/persistence"
	"DroughtLedger/internal/projection"
)

// The shutdown sequence closes the bridge's output channels after the bridge
// has returned. The bridge must therefore unblock on cancellation even while
// stuck forwarding to a full persistence channel.
func TestBridgeOutputs_ReturnsOnCancelWhileBlocked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	persistIn := make(chan core.Output, 1)
	publishIn := make(chan core.Output, 1)
	persistOut := make(chan persistence.EventRow) // no reader, send blocks
	projectionOut := make(chan projection.Output, 1)
	publisherOut := make(chan ingestion.PublishableEvent, 1)

	persistIn <- core.Output{Envelope: &event.Envelope{
		Sequence:       1,
		IdempotencyKey: "policy_created:1",
		Type:           event.TypePolicyCreated,
		Timestamp:      time.Now(),
		Payload:        []byte(`{}`),
	}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bridgeOutputs(ctx, persistIn, publishIn, persistOut, projectionOut, publisherOut)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not return after cancellation")
	}

	// Safe only once the bridge has returned.
	close(persistOut)
	close(projectionOut)
	close(publisherOut)
}
