package store

import (
	"context"

	"carelink/internal/domain/call"
)

// Subscription is a live feed of CallRecords. Cancel must be called when
// the observing screen goes away; a leaked subscription keeps surfacing
// stale incoming-call prompts.
type Subscription interface {
	Records() <-chan *call.Record
	Cancel()
}

// RecordStore is the shared, multi-writer record store the signaling
// protocol runs on. Implementations must make Transition an atomic
// conditional update: of all writers racing the same record, exactly one
// transition out of a non-terminal state durably applies.
type RecordStore interface {
	// Create writes a new record. The record's Status must be valid.
	Create(ctx context.Context, rec *call.Record) error

	// Get returns the record or carelink_errors.ErrNotFound.
	Get(ctx context.Context, callID string) (*call.Record, error)

	// Transition conditionally advances the record to the given status,
	// stamping the matching timestamp store-side. applied is false when
	// the state machine forbids the move (typically a race loss against
	// an already-applied terminal transition); the returned record is
	// the authoritative state either way.
	Transition(ctx context.Context, callID string, to call.Status) (applied bool, rec *call.Record, err error)

	// SubscribeIncoming streams records in state INITIATED whose calleeId
	// equals the given user.
	SubscribeIncoming(ctx context.Context, calleeID string) (Subscription, error)
}
