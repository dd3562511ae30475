// Package panel assembles the turnout engine: the store, the feedback
// router, the command dispatcher, the stale monitor, persistence and
// the bus client, wired together behind one Panel value.
//
// # Lifecycle
//
//	p := panel.New(client, store, panel.Config{...})
//	if err := p.Start(ctx, hubAddr); err != nil {
//		...
//	}
//	defer p.Stop()
//
// Start loads the persisted turnout list, merges an optional JMRI
// layout import (saving the merged list so later boots skip the
// import), connects to the hub and kicks off a state refresh.
//
// # State changes
//
// UI layers subscribe to state changes through the Notifier rather
// than registering callbacks on the store:
//
//	ch := p.Notifier().Subscribe()
//	for change := range ch {
//		render(change.Index, change.State)
//	}
//
// The notifier never blocks the engine; when a subscriber falls
// behind, its oldest undelivered change is dropped in favor of the
// newest.
package panel
