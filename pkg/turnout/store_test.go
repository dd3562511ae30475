package turnout

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
)

const (
	evN1 = eventid.EventID(0x0501010122600000)
	evR1 = eventid.EventID(0x0501010122600001)
	evN2 = eventid.EventID(0x0501010122600002)
	evR2 = eventid.EventID(0x0501010122600003)
)

func TestAddAndFind(t *testing.T) {
	s := NewStore()

	idx, err := s.Add(evN1, evR1, "T1")
	if err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if idx != 0 {
		t.Errorf("Add index = %d, want 0", idx)
	}

	for _, ev := range []eventid.EventID{evN1, evR1} {
		got, ok := s.FindByEvent(ev)
		if !ok || got != 0 {
			t.Errorf("FindByEvent(%s) = %d, %v; want 0, true", ev, got, ok)
		}
	}

	if _, ok := s.FindByEvent(evN2); ok {
		t.Error("FindByEvent for unused event should miss")
	}
}

func TestAddDuplicateRejected(t *testing.T) {
	s := NewStore()
	if _, err := s.Add(evN1, evR1, "T1"); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	cases := []struct {
		name   string
		evN    eventid.EventID
		evR    eventid.EventID
	}{
		{"same pair", evN1, evR1},
		{"normal reused as normal", evN1, evR2},
		{"normal reused as reverse", evN2, evN1},
		{"reverse reused as reverse", evN2, evR1},
		{"reverse reused as normal", evR1, evR2},
		{"own pair identical", evN2, evN2},
	}
	for _, tc := range cases {
		_, err := s.Add(tc.evN, tc.evR, tc.name)
		if !errors.Is(err, ErrDuplicateEvent) {
			t.Errorf("%s: err = %v, want ErrDuplicateEvent", tc.name, err)
		}
	}

	if s.Count() != 1 {
		t.Errorf("Count = %d after rejected adds, want 1", s.Count())
	}
}

func TestAddFull(t *testing.T) {
	s := NewStoreWithCapacity(2)
	mustAdd(t, s, evN1, evR1, "a")
	mustAdd(t, s, evN2, evR2, "b")

	_, err := s.Add(0x10, 0x11, "c")
	if !errors.Is(err, ErrStoreFull) {
		t.Errorf("err = %v, want ErrStoreFull", err)
	}
	if s.Count() != 2 {
		t.Errorf("Count = %d, want 2", s.Count())
	}
}

func TestAddDefaultName(t *testing.T) {
	s := NewStore()
	idx := mustAdd(t, s, evN1, evR1, "")
	got, _ := s.Get(idx)
	if got.Name != "Turnout 1" {
		t.Errorf("Name = %q, want \"Turnout 1\"", got.Name)
	}
}

func TestAddClampsName(t *testing.T) {
	s := NewStore()
	long := "0123456789012345678901234567890123456789"
	idx := mustAdd(t, s, evN1, evR1, long)
	got, _ := s.Get(idx)
	if len(got.Name) != MaxNameLen {
		t.Errorf("len(Name) = %d, want %d", len(got.Name), MaxNameLen)
	}
}

func TestGetOutOfRange(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	if _, err := s.Get(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

func TestRemoveCompactsAndRetiresID(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "a")
	mustAdd(t, s, evN2, evR2, "b")
	mustAdd(t, s, 0x10, 0x11, "c")

	first, _ := s.Get(0)
	s.Remove(0)

	if s.Count() != 2 {
		t.Fatalf("Count = %d, want 2", s.Count())
	}
	got, _ := s.Get(0)
	if got.Name != "b" {
		t.Errorf("index 0 after remove = %q, want \"b\"", got.Name)
	}
	got, _ = s.Get(1)
	if got.Name != "c" {
		t.Errorf("index 1 after remove = %q, want \"c\"", got.Name)
	}

	// Out of range removes are silent no-ops.
	s.Remove(99)
	s.Remove(-1)
	if s.Count() != 2 {
		t.Errorf("Count = %d after no-op removes, want 2", s.Count())
	}

	// The removed ID must never come back.
	idx := mustAdd(t, s, 0x20, 0x21, "d")
	got, _ = s.Get(idx)
	if got.ID == first.ID {
		t.Errorf("removed ID %d was reused", first.ID)
	}
}

func TestRenameAndSwap(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "a")
	mustAdd(t, s, evN2, evR2, "b")

	if err := s.Rename(0, "alpha"); err != nil {
		t.Fatalf("Rename error: %v", err)
	}
	got, _ := s.Get(0)
	if got.Name != "alpha" {
		t.Errorf("Name = %q, want \"alpha\"", got.Name)
	}
	if err := s.Rename(5, "x"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Rename out of range err = %v", err)
	}

	if err := s.Swap(0, 1); err != nil {
		t.Fatalf("Swap error: %v", err)
	}
	got, _ = s.Get(0)
	if got.Name != "b" {
		t.Errorf("index 0 after swap = %q, want \"b\"", got.Name)
	}
	if err := s.Swap(0, 9); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Swap out of range err = %v", err)
	}
}

func TestFlipPolarity(t *testing.T) {
	s := NewStore()
	idx := mustAdd(t, s, evN1, evR1, "a")

	s.SetStateByEvent(evN1, StateNormal)

	if err := s.FlipPolarity(idx); err != nil {
		t.Fatalf("FlipPolarity error: %v", err)
	}
	got, _ := s.Get(idx)
	if got.EventNormal != evR1 || got.EventReverse != evN1 {
		t.Errorf("events after flip = %s/%s", got.EventNormal, got.EventReverse)
	}
	// The stored position flips with the wiring sense.
	if got.State != StateReverse {
		t.Errorf("State after flip = %v, want REVERSE", got.State)
	}

	if err := s.FlipPolarity(7); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("FlipPolarity out of range err = %v", err)
	}
}

func TestSetStateByEvent(t *testing.T) {
	s := NewStore()
	idx := mustAdd(t, s, evN1, evR1, "T1")
	s.SetPending(idx, true)

	var gotIdx int
	var gotState State
	calls := 0
	s.OnStateChange(func(i int, st State) {
		gotIdx, gotState = i, st
		calls++
	})

	s.SetStateByEvent(evN1, StateNormal)

	got, _ := s.Get(idx)
	if got.State != StateNormal {
		t.Errorf("State = %v, want NORMAL", got.State)
	}
	if got.CommandPending {
		t.Error("CommandPending not cleared")
	}
	if got.LastUpdate.IsZero() {
		t.Error("LastUpdate not stamped")
	}
	if calls != 1 || gotIdx != idx || gotState != StateNormal {
		t.Errorf("callback = (%d, %v) x%d, want (0, NORMAL) x1", gotIdx, gotState, calls)
	}
}

func TestSetStateByEventIdempotent(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")

	calls := 0
	s.OnStateChange(func(int, State) { calls++ })

	s.SetStateByEvent(evN1, StateNormal)
	first, _ := s.Get(0)
	s.SetStateByEvent(evN1, StateNormal)
	second, _ := s.Get(0)

	if second.State != first.State || second.CommandPending != first.CommandPending {
		t.Error("second identical update changed observable state")
	}
	if second.LastUpdate.Before(first.LastUpdate) {
		t.Error("second update moved timestamp backwards")
	}
	if calls != 2 {
		t.Errorf("callback calls = %d, want 2 (once per delivery)", calls)
	}
}

func TestSetStateByEventNoMatch(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")

	calls := 0
	s.OnStateChange(func(int, State) { calls++ })

	s.SetStateByEvent(0xDEAD, StateNormal)

	if calls != 0 {
		t.Errorf("callback fired %d times for unmatched event", calls)
	}
	got, _ := s.Get(0)
	if got.State != StateUnknown {
		t.Errorf("State = %v, want UNKNOWN", got.State)
	}
}

func TestCallbackMayReenterStore(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")

	done := make(chan struct{})
	s.OnStateChange(func(i int, _ State) {
		// Re-entering the store from the callback must not deadlock.
		if _, err := s.Get(i); err != nil {
			t.Errorf("Get from callback: %v", err)
		}
		close(done)
	})

	s.SetStateByEvent(evN1, StateNormal)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not complete (deadlock?)")
	}
}

func TestSweepStaleBoundary(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")

	base := time.Now()
	s.now = func() time.Time { return base }
	s.SetStateByEvent(evN1, StateNormal)

	calls := 0
	s.OnStateChange(func(_ int, st State) {
		if st == StateStale {
			calls++
		}
	})

	timeout := time.Second

	// 999ms after the update: not stale yet.
	s.now = func() time.Time { return base.Add(999 * time.Millisecond) }
	if n := s.SweepStale(timeout); n != 0 {
		t.Errorf("SweepStale at +999ms marked %d, want 0", n)
	}

	// 1001ms after the update: stale, one notification.
	s.now = func() time.Time { return base.Add(1001 * time.Millisecond) }
	if n := s.SweepStale(timeout); n != 1 {
		t.Errorf("SweepStale at +1001ms marked %d, want 1", n)
	}
	got, _ := s.Get(0)
	if got.State != StateStale {
		t.Errorf("State = %v, want STALE", got.State)
	}
	if calls != 1 {
		t.Errorf("stale notifications = %d, want 1", calls)
	}

	// Already stale: no second transition.
	if n := s.SweepStale(timeout); n != 0 {
		t.Errorf("repeat SweepStale marked %d, want 0", n)
	}
}

func TestSweepStaleSkipsUnknown(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "never heard from")

	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	if n := s.SweepStale(time.Millisecond); n != 0 {
		t.Errorf("SweepStale marked %d unknown turnouts, want 0", n)
	}
	got, _ := s.Get(0)
	if got.State != StateUnknown {
		t.Errorf("State = %v, want UNKNOWN", got.State)
	}
}

func TestSweepStaleDisabled(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")
	s.SetStateByEvent(evN1, StateNormal)

	if n := s.SweepStale(0); n != 0 {
		t.Errorf("SweepStale(0) marked %d, want 0 (disabled)", n)
	}
}

func TestSweepStaleCallbackMayReenter(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")

	base := time.Now()
	s.now = func() time.Time { return base }
	s.SetStateByEvent(evN1, StateNormal)

	s.OnStateChange(func(i int, st State) {
		if st != StateStale {
			return
		}
		// The sweep must release the lock around this callback.
		if _, err := s.Get(i); err != nil {
			t.Errorf("Get from stale callback: %v", err)
		}
	})

	s.now = func() time.Time { return base.Add(time.Hour) }
	done := make(chan struct{})
	go func() {
		s.SweepStale(time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SweepStale deadlocked against re-entrant callback")
	}
}

func TestFreshFeedbackClearsStale(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "T1")

	base := time.Now()
	s.now = func() time.Time { return base }
	s.SetStateByEvent(evN1, StateNormal)

	s.now = func() time.Time { return base.Add(time.Hour) }
	s.SweepStale(time.Second)

	s.SetStateByEvent(evR1, StateReverse)
	got, _ := s.Get(0)
	if got.State != StateReverse {
		t.Errorf("State = %v, want REVERSE after fresh feedback", got.State)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "a")

	snap := s.Snapshot()
	snap[0].Name = "mutated"

	got, _ := s.Get(0)
	if got.Name != "a" {
		t.Errorf("snapshot mutation leaked into store: %q", got.Name)
	}
}

func TestViewHoldsLock(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "a")

	v := s.View()
	if v.Len() != 1 || v.Turnouts()[0].Name != "a" {
		t.Errorf("view contents wrong")
	}

	blocked := make(chan struct{})
	go func() {
		s.Count() // blocks until the view closes
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("store operation proceeded while view was open")
	case <-time.After(50 * time.Millisecond):
	}

	v.Close()
	v.Close() // double close is safe

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("store operation still blocked after view close")
	}
}

func TestConcurrentFeedbackAndEdits(t *testing.T) {
	s := NewStore()
	mustAdd(t, s, evN1, evR1, "a")
	mustAdd(t, s, evN2, evR2, "b")
	s.OnStateChange(func(i int, _ State) { _, _ = s.Get(i) })

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.SetStateByEvent(evN1, StateNormal)
			s.SetStateByEvent(evR2, StateReverse)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.Rename(0, "renamed")
			_ = s.Swap(0, 1)
			s.SetPending(1, true)
			s.Snapshot()
		}
	}()
	wg.Wait()
}

func mustAdd(t *testing.T, s *Store, evN, evR eventid.EventID, name string) int {
	t.Helper()
	idx, err := s.Add(evN, evR, name)
	if err != nil {
		t.Fatalf("Add(%s, %s, %q): %v", evN, evR, name, err)
	}
	return idx
}
