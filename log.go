package esrt

import (
	"context"
)

// StreamMeta is the per-stream record an Append checks and updates for
// optimistic concurrency and duplicate-append suppression (spec §3).
type StreamMeta struct {
	CurrentVersion string
	LastTxnID      string
}

// SubscribeOptions configures how a subscription attaches to its source
// stream.
type SubscribeOptions struct {
	StartFrom StartPosition
	// Stream is the source stream; the zero value means AllEventsStream.
	Stream string
}

// Log is the abstract Event Log contract (spec §4.1). Backends other than
// Redis (a durable file log, a relational table with serialized writes,
// ...) are interchangeable through this narrow contract.
//
// All operations must be safe for concurrent use.
type Log interface {
	// Append atomically assigns each of events an increasing version,
	// writes them to the per-stream log and to the global all-events log,
	// and advances the stream's metadata — unless txnID matches the
	// stream's LastTxnID, in which case it is a no-op returning the
	// stored metadata (idempotent replay), or expectedVersion does not
	// match the stream's current version, in which case it returns a
	// *ConcurrencyError and writes nothing.
	Append(ctx context.Context, streamID, txnID, expectedVersion string, events []Event) ([]Event, StreamMeta, error)

	// Read returns events for streamID with version strictly greater than
	// startVersion, in order. startVersion == "" means InitialVersion.
	// limit <= 0 means unbounded.
	Read(ctx context.Context, streamID, startVersion string, limit int) ([]Event, error)

	// Subscribe registers a durable cursor named subscriberName and begins
	// delivering events from opts.Stream (default AllEventsStream) to
	// handler with at-least-once semantics, in the background. Re-calling
	// Subscribe with a previously used subscriberName continues from the
	// persisted cursor regardless of opts.StartFrom. Subscribe returns
	// once the subscription is registered; delivery happens asynchronously
	// until the Log is closed.
	Subscribe(ctx context.Context, subscriberName string, opts SubscribeOptions, handler func(context.Context, Event) error) error

	// SaveSnapshot upserts the snapshot for streamID.
	SaveSnapshot(ctx context.Context, streamID string, snap Snapshot) error

	// GetSnapshot retrieves the latest snapshot for streamID. Found is
	// false if none exists.
	GetSnapshot(ctx context.Context, streamID string) (Snapshot, error)

	// Close releases the Log's resources and halts every subscription's
	// background delivery.
	Close() error
}
