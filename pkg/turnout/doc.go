// Package turnout implements the authoritative in-memory turnout model.
//
// The Store owns a bounded, ordered collection of turnout records and
// serializes every read and write through a single mutex. It is shared
// between two execution contexts: the bus client goroutine, which
// applies state feedback as events arrive, and the UI/control context,
// which issues commands and edits the list.
//
// # Locking Discipline
//
// All operations acquire the store lock internally. The state-changed
// callback is always invoked with the lock released, so the callback
// may safely call back into the store. Batch consumers use Snapshot
// (copy-out) or View (a guarded view that holds the lock until Close);
// a View must be closed promptly because it blocks every other store
// operation, including the bus client.
//
// # States
//
// A turnout is Unknown until feedback arrives, then Normal or Reverse.
// Stale is an overlay applied by SweepStale when feedback has gone
// silent; only a previously Normal or Reverse turnout can become
// Stale. Fresh feedback restores Normal/Reverse through
// SetStateByEvent.
package turnout
