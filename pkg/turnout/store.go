package turnout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
)

// Store errors.
var (
	// ErrOutOfRange indicates an index past the end of the store.
	ErrOutOfRange = errors.New("turnout index out of range")

	// ErrDuplicateEvent indicates an event ID already in use.
	ErrDuplicateEvent = errors.New("event ID already in use")

	// ErrStoreFull indicates the store is at capacity.
	ErrStoreFull = errors.New("turnout store full")
)

// StateCallback receives state-changed notifications. It is invoked
// with the store lock released and may call back into the store. It
// runs on the caller's goroutine, so it must not block for long.
type StateCallback func(index int, state State)

// Store is the bounded, mutex-guarded turnout collection. The zero
// value is not usable; use NewStore.
type Store struct {
	mu sync.Mutex

	turnouts []Turnout
	capacity int

	// Next stable ID. IDs are never reused, even after Remove.
	nextID uint32

	onStateChange StateCallback

	// Clock, replaceable in tests.
	now func() time.Time
}

// NewStore creates a store bounded at MaxTurnouts.
func NewStore() *Store {
	return NewStoreWithCapacity(MaxTurnouts)
}

// NewStoreWithCapacity creates a store with a custom bound.
func NewStoreWithCapacity(capacity int) *Store {
	if capacity <= 0 || capacity > MaxTurnouts {
		capacity = MaxTurnouts
	}
	return &Store{
		turnouts: make([]Turnout, 0, capacity),
		capacity: capacity,
		nextID:   1,
		now:      time.Now,
	}
}

// OnStateChange registers the state-changed callback. Pass nil to
// unregister.
func (s *Store) OnStateChange(cb StateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStateChange = cb
}

// Count returns the number of managed turnouts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turnouts)
}

// Get returns a copy of the turnout at index.
func (s *Store) Get(index int) (Turnout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turnouts) {
		return Turnout{}, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return s.turnouts[index], nil
}

// Add appends a new turnout and returns its index. The two event IDs
// must differ from each other and from every event ID already in the
// store, in either polarity. An empty name gets a default.
func (s *Store) Add(evNormal, evReverse eventid.EventID, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(Definition{
		Name:         name,
		EventNormal:  evNormal,
		EventReverse: evReverse,
		UserOrder:    uint16(len(s.turnouts)),
	})
}

// AddDefinition appends a turnout from a persisted definition,
// preserving its user order. Same uniqueness and capacity rules as Add.
func (s *Store) AddDefinition(def Definition) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(def)
}

func (s *Store) addLocked(def Definition) (int, error) {
	if len(s.turnouts) >= s.capacity {
		return -1, fmt.Errorf("%w: capacity %d", ErrStoreFull, s.capacity)
	}
	if def.EventNormal == def.EventReverse {
		return -1, fmt.Errorf("%w: normal and reverse are identical (%s)",
			ErrDuplicateEvent, def.EventNormal)
	}
	for i := range s.turnouts {
		t := &s.turnouts[i]
		if t.EventNormal == def.EventNormal || t.EventReverse == def.EventNormal ||
			t.EventNormal == def.EventReverse || t.EventReverse == def.EventReverse {
			return -1, fmt.Errorf("%w: collides with %q at index %d",
				ErrDuplicateEvent, t.Name, i)
		}
	}

	idx := len(s.turnouts)
	name := clampName(def.Name)
	if name == "" {
		name = fmt.Sprintf("Turnout %d", idx+1)
	}

	s.turnouts = append(s.turnouts, Turnout{
		ID:           s.nextID,
		Name:         name,
		EventNormal:  def.EventNormal,
		EventReverse: def.EventReverse,
		State:        StateUnknown,
		UserOrder:    def.UserOrder,
	})
	s.nextID++
	return idx, nil
}

// Remove deletes the turnout at index, shifting later entries down.
// An out-of-range index is a no-op. The removed ID is retired.
func (s *Store) Remove(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turnouts) {
		return
	}
	s.turnouts = append(s.turnouts[:index], s.turnouts[index+1:]...)
}

// Rename sets the turnout's display name.
func (s *Store) Rename(index int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turnouts) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	s.turnouts[index].Name = clampName(name)
	return nil
}

// Swap exchanges the turnouts at two indices, used for reordering.
func (s *Store) Swap(a, b int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.turnouts)
	if a < 0 || a >= n || b < 0 || b >= n {
		return fmt.Errorf("%w: %d, %d", ErrOutOfRange, a, b)
	}
	if a != b {
		s.turnouts[a], s.turnouts[b] = s.turnouts[b], s.turnouts[a]
	}
	return nil
}

// FlipPolarity exchanges the normal and reverse event IDs of one
// turnout, correcting a wiring-sense error without re-entering both.
// A known state is flipped with it so the display stays truthful.
func (s *Store) FlipPolarity(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.turnouts) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	t := &s.turnouts[index]
	t.EventNormal, t.EventReverse = t.EventReverse, t.EventNormal
	switch t.State {
	case StateNormal:
		t.State = StateReverse
	case StateReverse:
		t.State = StateNormal
	}
	return nil
}

// FindByEvent returns the index of the turnout owning an event ID, in
// either polarity. A miss is a valid negative result, not an error.
func (s *Store) FindByEvent(ev eventid.EventID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.turnouts {
		if s.turnouts[i].EventNormal == ev || s.turnouts[i].EventReverse == ev {
			return i, true
		}
	}
	return -1, false
}

// SetStateByEvent applies feedback for an event ID: the matching
// turnout gets the given state, a fresh timestamp, and a cleared
// pending flag. The state-changed callback fires exactly once, after
// the lock is released. No match is a silent no-op; the router owns
// the discovery fallback.
func (s *Store) SetStateByEvent(ev eventid.EventID, state State) {
	s.mu.Lock()

	for i := range s.turnouts {
		t := &s.turnouts[i]
		if t.EventNormal != ev && t.EventReverse != ev {
			continue
		}

		t.State = state
		t.LastUpdate = s.now()
		t.CommandPending = false
		cb := s.onStateChange
		s.mu.Unlock()

		if cb != nil {
			cb(i, state)
		}
		return
	}

	s.mu.Unlock()
}

// SetPending sets the command-pending flag. An out-of-range index is
// a no-op.
func (s *Store) SetPending(index int, pending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= 0 && index < len(s.turnouts) {
		s.turnouts[index].CommandPending = pending
	}
}

// SweepStale marks every Normal or Reverse turnout whose last feedback
// is older than timeout as Stale and fires the state-changed callback
// for each. A zero or negative timeout disables the sweep. Turnouts
// that never received feedback stay Unknown. Returns the number of
// turnouts marked.
//
// The lock is released around each callback; a turnout edited by the
// callback (or by the other execution context) during that window is
// re-checked before being marked.
func (s *Store) SweepStale(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}

	now := s.now()
	marked := 0

	s.mu.Lock()
	for i := 0; i < len(s.turnouts); i++ {
		t := &s.turnouts[i]
		if t.LastUpdate.IsZero() {
			continue
		}
		if t.State != StateNormal && t.State != StateReverse {
			continue
		}
		if now.Sub(t.LastUpdate) <= timeout {
			continue
		}

		t.State = StateStale
		marked++
		cb := s.onStateChange
		if cb != nil {
			// Release before notifying so the callback can re-enter.
			s.mu.Unlock()
			cb(i, StateStale)
			s.mu.Lock()
		}
	}
	s.mu.Unlock()

	return marked
}

// Definitions returns the persistable subset of every turnout in
// display order.
func (s *Store) Definitions() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs := make([]Definition, len(s.turnouts))
	for i := range s.turnouts {
		defs[i] = Definition{
			Name:         s.turnouts[i].Name,
			EventNormal:  s.turnouts[i].EventNormal,
			EventReverse: s.turnouts[i].EventReverse,
			UserOrder:    s.turnouts[i].UserOrder,
		}
	}
	return defs
}
