package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// Query pacing limits, matching the panel configuration ranges.
const (
	// MinQueryPace is the fastest allowed inter-message interval.
	MinQueryPace = 20 * time.Millisecond

	// MaxQueryPace is the slowest allowed inter-message interval.
	MaxQueryPace = time.Second

	// DefaultQueryPace is the default inter-message interval.
	DefaultQueryPace = 100 * time.Millisecond
)

// EventSender is the outbound half of the protocol client consumed by
// the dispatcher.
type EventSender interface {
	// SendEvent produces an event on the bus.
	SendEvent(ev eventid.EventID) error

	// QueryProducer broadcasts a producer-identify request for an
	// event. Producers answer with ProducerIdentified responses.
	QueryProducer(ev eventid.EventID) error
}

// TurnoutAccess is the slice of the store the dispatcher needs. It is
// satisfied by *turnout.Store.
type TurnoutAccess interface {
	Count() int
	Get(index int) (turnout.Turnout, error)
	SetPending(index int, pending bool)
}

// Compile-time check: *turnout.Store implements TurnoutAccess.
var _ TurnoutAccess = (*turnout.Store)(nil)

// Dispatcher sends turnout commands and state queries.
type Dispatcher struct {
	store  TurnoutAccess
	sender EventSender
	pace   time.Duration
}

// New creates a dispatcher with the default query pace.
func New(store TurnoutAccess, sender EventSender) *Dispatcher {
	return NewWithPace(store, sender, DefaultQueryPace)
}

// NewWithPace creates a dispatcher with a custom query pace. The pace
// is clamped to [MinQueryPace, MaxQueryPace].
func NewWithPace(store TurnoutAccess, sender EventSender, pace time.Duration) *Dispatcher {
	if pace < MinQueryPace {
		pace = MinQueryPace
	}
	if pace > MaxQueryPace {
		pace = MaxQueryPace
	}
	return &Dispatcher{store: store, sender: sender, pace: pace}
}

// CommandEvent returns the event a toggle would send for a turnout in
// the given state: normal for a Reverse turnout, reverse otherwise.
func CommandEvent(t turnout.Turnout) eventid.EventID {
	if t.State == turnout.StateReverse {
		return t.EventNormal
	}
	return t.EventReverse
}

// Toggle commands the turnout at index to its opposite position. The
// pending flag is set before transmission; if the local send fails the
// flag is cleared again, since no feedback can ever match.
func (d *Dispatcher) Toggle(index int) error {
	t, err := d.store.Get(index)
	if err != nil {
		return err
	}

	ev := CommandEvent(t)
	d.store.SetPending(index, true)
	if err := d.sender.SendEvent(ev); err != nil {
		d.store.SetPending(index, false)
		return fmt.Errorf("toggle %q: %w", t.Name, err)
	}
	return nil
}

// QueryTurnout broadcasts producer-identify requests for both events
// of one turnout. Responses arrive asynchronously through the router.
func (d *Dispatcher) QueryTurnout(ctx context.Context, index int) error {
	t, err := d.store.Get(index)
	if err != nil {
		return err
	}
	return d.queryPair(ctx, t.EventNormal, t.EventReverse)
}

// QueryAll broadcasts producer-identify requests for every turnout,
// paced by the configured interval. It blocks until all queries are
// sent or the context is cancelled; run it on its own goroutine when
// the caller must not wait.
func (d *Dispatcher) QueryAll(ctx context.Context) error {
	count := d.store.Count()
	for i := 0; i < count; i++ {
		t, err := d.store.Get(i)
		if err != nil {
			// The list shrank mid-query; stop quietly.
			return nil
		}
		if err := d.queryPair(ctx, t.EventNormal, t.EventReverse); err != nil {
			return err
		}
	}
	return nil
}

// queryPair sends the two identify requests, waiting half the pace
// after each so consecutive messages never exceed the configured rate.
func (d *Dispatcher) queryPair(ctx context.Context, evN, evR eventid.EventID) error {
	if err := d.sender.QueryProducer(evN); err != nil {
		return err
	}
	if err := sleepCtx(ctx, d.pace/2); err != nil {
		return err
	}
	if err := d.sender.QueryProducer(evR); err != nil {
		return err
	}
	return sleepCtx(ctx, d.pace/2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
