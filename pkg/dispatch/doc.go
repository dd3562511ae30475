// Package dispatch translates user intents into outbound bus events.
//
// Toggle computes the command event from the turnout's current state:
// a Reverse turnout is commanded to normal, every other state
// (Normal, Unknown, Stale) is commanded to reverse. Commanding reverse
// for ambiguous states is deliberate policy, not an accident.
//
// The dispatcher marks the turnout command-pending before handing the
// event to the protocol client, and never waits for delivery; the
// matching feedback event clears the pending flag through the store.
//
// Query operations broadcast producer-identify requests so that
// producers answer with their current state. Queries are paced by a
// minimum inter-message interval to avoid saturating the bus and are
// fire-and-forget; responses arrive later through the router.
package dispatch
