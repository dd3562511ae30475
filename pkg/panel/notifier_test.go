package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

func TestNotifierDelivers(t *testing.T) {
	n := NewNotifier(4)
	defer n.Close()

	ch := n.Subscribe()
	n.Publish(StateChange{Index: 2, State: turnout.StateReverse})

	change := <-ch
	assert.Equal(t, 2, change.Index)
	assert.Equal(t, turnout.StateReverse, change.State)
}

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier(4)
	defer n.Close()

	a := n.Subscribe()
	b := n.Subscribe()
	n.Publish(StateChange{Index: 1, State: turnout.StateNormal})

	assert.Equal(t, 1, (<-a).Index)
	assert.Equal(t, 1, (<-b).Index)
}

func TestNotifierDropsOldestWhenFull(t *testing.T) {
	n := NewNotifier(2)
	defer n.Close()

	ch := n.Subscribe()
	for i := 0; i < 5; i++ {
		n.Publish(StateChange{Index: i, State: turnout.StateNormal})
	}

	// Buffer depth 2: the two newest changes survive.
	assert.Equal(t, 3, (<-ch).Index)
	assert.Equal(t, 4, (<-ch).Index)
	select {
	case change := <-ch:
		t.Fatalf("unexpected extra change: %+v", change)
	default:
	}
}

func TestNotifierCloseClosesChannels(t *testing.T) {
	n := NewNotifier(4)
	ch := n.Subscribe()

	n.Close()
	n.Close()

	_, open := <-ch
	assert.False(t, open)

	// Publish after close is a no-op.
	n.Publish(StateChange{Index: 0, State: turnout.StateNormal})
}

func TestNotifierSubscribeAfterClose(t *testing.T) {
	n := NewNotifier(4)
	n.Close()

	ch := n.Subscribe()
	require.NotNil(t, ch)
	_, open := <-ch
	assert.False(t, open)
}
