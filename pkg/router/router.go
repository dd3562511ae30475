package router

import (
	"sync"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// TurnoutLookup is the slice of the store the router needs. It is
// satisfied by *turnout.Store.
type TurnoutLookup interface {
	Get(index int) (turnout.Turnout, error)
	FindByEvent(ev eventid.EventID) (int, bool)
	SetStateByEvent(ev eventid.EventID, state turnout.State)
}

// Compile-time check: *turnout.Store implements TurnoutLookup.
var _ TurnoutLookup = (*turnout.Store)(nil)

// DiscoveryCallback receives event IDs that matched no turnout while
// discovery mode is on. It runs on the bus client's goroutine.
type DiscoveryCallback func(ev eventid.EventID)

// Router routes inbound bus events to the turnout store.
type Router struct {
	mu sync.RWMutex

	store TurnoutLookup

	discoveryMode bool
	onDiscovery   DiscoveryCallback
}

// New creates a router over the given store.
func New(store TurnoutLookup) *Router {
	return &Router{store: store}
}

// SetDiscoveryMode turns discovery mode on or off.
func (r *Router) SetDiscoveryMode(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoveryMode = enabled
}

// DiscoveryMode reports whether discovery mode is on.
func (r *Router) DiscoveryMode() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.discoveryMode
}

// OnDiscovery sets the callback for unmatched events. Pass nil to
// unregister.
func (r *Router) OnDiscovery(cb DiscoveryCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDiscovery = cb
}

// OnReport routes an unconditional event report.
func (r *Router) OnReport(ev eventid.EventID) {
	r.route(ev)
}

// OnProducerIdentified routes a response to a state query. INVALID
// responses are ignored; the active state arrives as a separate VALID
// response for the other event ID.
func (r *Router) OnProducerIdentified(ev eventid.EventID, valid bool) {
	if !valid {
		return
	}
	r.route(ev)
}

func (r *Router) route(ev eventid.EventID) {
	idx, ok := r.store.FindByEvent(ev)
	if !ok {
		r.mu.RLock()
		cb := r.onDiscovery
		active := r.discoveryMode
		r.mu.RUnlock()

		if active && cb != nil {
			cb(ev)
		}
		return
	}

	t, err := r.store.Get(idx)
	if err != nil {
		// The turnout was removed between lookup and read; the event
		// no longer belongs to anyone.
		return
	}

	state := turnout.StateReverse
	if ev == t.EventNormal {
		state = turnout.StateNormal
	}
	r.store.SetStateByEvent(ev, state)
}
