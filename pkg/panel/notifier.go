package panel

import (
	"sync"

	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// DefaultSubscriberBuffer is the per-subscriber channel depth.
const DefaultSubscriberBuffer = 32

// StateChange describes one turnout state transition.
type StateChange struct {
	// Index is the turnout's position in display order.
	Index int

	// State is the new state.
	State turnout.State
}

// Notifier fans turnout state changes out to subscribers. Publishing
// never blocks: a subscriber that falls behind loses its oldest
// undelivered change, never the newest.
type Notifier struct {
	mu     sync.Mutex
	subs   []chan StateChange
	buffer int
	closed bool
}

// NewNotifier creates a notifier with the given per-subscriber buffer
// depth. Zero or negative uses DefaultSubscriberBuffer.
func NewNotifier(buffer int) *Notifier {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Notifier{buffer: buffer}
}

// Subscribe returns a channel of state changes. The channel closes
// when the notifier shuts down.
func (n *Notifier) Subscribe() <-chan StateChange {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan StateChange, n.buffer)
	if n.closed {
		close(ch)
		return ch
	}
	n.subs = append(n.subs, ch)
	return ch
}

// Publish delivers a change to every subscriber without blocking.
func (n *Notifier) Publish(change StateChange) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	for _, ch := range n.subs {
		for {
			select {
			case ch <- change:
			default:
				// Full buffer: drop the oldest and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close shuts the notifier down and closes all subscriber channels.
// Safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}
