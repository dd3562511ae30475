// Package stale marks turnouts whose feedback has gone silent.
//
// The bus gives no delivery guarantee, so the only signal that a
// turnout's state is still trustworthy is the age of its last
// feedback. The monitor periodically sweeps the store and downgrades
// Normal/Reverse turnouts older than the configured timeout to Stale.
// Unknown turnouts are never marked; there was nothing to lose trust
// in. Fresh feedback restores the real state through the store, not
// through this package.
//
// The monitor does not schedule itself by default: the owner calls
// Sweep from its own tick. Start runs an internal ticker for owners
// without a main loop.
package stale
