package turnout

import (
	"fmt"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
)

// Store limits.
const (
	// MaxTurnouts is the fixed upper bound on managed turnouts.
	MaxTurnouts = 150

	// MaxNameLen is the effective turnout name length in bytes.
	MaxNameLen = 31
)

// State is the commanded/observed position of a turnout.
type State uint8

const (
	// StateUnknown means no feedback has been observed yet.
	StateUnknown State = iota

	// StateNormal means the turnout is in its normal (closed) position.
	StateNormal

	// StateReverse means the turnout is in its reverse (thrown) position.
	StateReverse

	// StateStale means a previously known position has gone silent.
	StateStale
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateNormal:
		return "NORMAL"
	case StateReverse:
		return "REVERSE"
	case StateStale:
		return "STALE"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Turnout is one managed turnout record.
type Turnout struct {
	// ID is the stable identifier assigned at creation. It survives
	// rename, reorder and polarity flips and is never reused.
	ID uint32

	// Name is the display name, at most MaxNameLen bytes.
	Name string

	// EventNormal is the event ID commanding the normal position.
	EventNormal eventid.EventID

	// EventReverse is the event ID commanding the reverse position.
	EventReverse eventid.EventID

	// State is the last observed position.
	State State

	// LastUpdate is when feedback was last observed. The zero value
	// means never updated.
	LastUpdate time.Time

	// CommandPending is true from command send until feedback arrives.
	CommandPending bool

	// UserOrder is a display/sort hint. It does not affect identity.
	UserOrder uint16
}

// Definition is the persisted subset of a turnout record. State,
// timestamps and pending flags are transient and never persisted.
type Definition struct {
	Name         string
	EventNormal  eventid.EventID
	EventReverse eventid.EventID
	UserOrder    uint16
}

// clampName truncates a name to MaxNameLen bytes.
func clampName(name string) string {
	if len(name) > MaxNameLen {
		return name[:MaxNameLen]
	}
	return name
}
