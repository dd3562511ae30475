package turnout

// Snapshot returns a copy of every turnout in display order. The copy
// is private to the caller and safe to read without the store lock.
// At the store's bounded scale, copying is cheap enough for rendering.
func (s *Store) Snapshot() []Turnout {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Turnout, len(s.turnouts))
	copy(out, s.turnouts)
	return out
}

// View is a read-only view of the store's backing array that holds the
// store lock until Close. Every other store operation, including the
// bus client, blocks while a View is open, so keep its lifetime to a
// short batch read.
type View struct {
	s      *Store
	closed bool
}

// View acquires the store lock and returns a guarded view.
func (s *Store) View() *View {
	s.mu.Lock()
	return &View{s: s}
}

// Turnouts returns the backing array. Valid only until Close.
func (v *View) Turnouts() []Turnout {
	return v.s.turnouts
}

// Len returns the number of turnouts in the view.
func (v *View) Len() int {
	return len(v.s.turnouts)
}

// Close releases the store lock. Safe to call more than once.
func (v *View) Close() {
	if v.closed {
		return
	}
	v.closed = true
	v.s.mu.Unlock()
}
