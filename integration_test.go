package panelgo_test

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/busclient"
	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/panel"
	"github.com/ivanbuilds/panel-go/pkg/storage"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

const (
	testNodeID = eventid.NodeID(0x050101012260)

	evMainN = eventid.EventID(0x0501010122600000)
	evMainR = eventid.EventID(0x0501010122600001)
	evYardN = eventid.EventID(0x0501010122600002)
	evYardR = eventid.EventID(0x0501010122600003)

	// CAN headers as they appear on the wire: 0x19<MTI><alias>.
	headerEventReport     = uint32(0x195B4000)
	headerProducerIdValid = uint32(0x19544000)
	mtiEventReport        = uint16(0x5B4)
	mtiProducerIdentify   = uint16(0x914)

	hubAlias = uint16(0x6B2)
)

// echoHub is a minimal GridConnect hub: it accepts one panel, tracks
// frames the panel sends and can inject bus traffic. When echoCommands
// is set, every event report from the panel is answered with the same
// event, simulating a turnout decoder that confirms immediately.
type echoHub struct {
	t  *testing.T
	ln net.Listener

	mu           sync.Mutex
	conn         net.Conn
	echoCommands bool
	reports      []eventid.EventID
	queries      []eventid.EventID
}

func newEchoHub(t *testing.T) *echoHub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	h := &echoHub{t: t, ln: ln}
	t.Cleanup(func() { ln.Close() })
	go h.serve()
	return h
}

func (h *echoHub) addr() string {
	return h.ln.Addr().String()
}

func (h *echoHub) setEcho(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.echoCommands = on
}

func (h *echoHub) serve() {
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()
		go h.readLoop(conn)
	}
}

func (h *echoHub) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString(';')
		if err != nil {
			return
		}
		frame, err := busclient.ParseGridConnect(line)
		if err != nil || !frame.IsOpenLCB() || len(frame.Data) != 8 {
			continue
		}

		event := eventid.FromBytes(frame.Data)
		h.mu.Lock()
		switch frame.MTI() {
		case mtiEventReport:
			h.reports = append(h.reports, event)
			if h.echoCommands {
				h.injectLocked(headerEventReport, event)
			}
		case mtiProducerIdentify:
			h.queries = append(h.queries, event)
		}
		h.mu.Unlock()
	}
}

// inject sends a frame carrying an event from the hub to the panel.
func (h *echoHub) inject(header uint32, event eventid.EventID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.injectLocked(header, event)
}

func (h *echoHub) injectLocked(header uint32, event eventid.EventID) {
	if h.conn == nil {
		return
	}
	data := event.Bytes()
	line, err := busclient.EncodeGridConnect(busclient.Frame{
		ID:   header | uint32(hubAlias),
		Data: data[:],
	})
	if err != nil {
		return
	}
	h.conn.Write([]byte(line))
}

func (h *echoHub) sentReports() []eventid.EventID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]eventid.EventID(nil), h.reports...)
}

func (h *echoHub) queryCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queries)
}

func startPanel(t *testing.T, hub *echoHub, dir string, cfg panel.Config) *panel.Panel {
	t.Helper()

	client := busclient.New(busclient.Config{
		NodeID:       testNodeID,
		ReserveDelay: 20 * time.Millisecond,
	})
	store := storage.NewFileStore(filepath.Join(dir, "turnouts.json"))
	p := panel.New(client, store, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Start(ctx, hub.addr()); err != nil {
		t.Fatalf("panel start: %v", err)
	}
	t.Cleanup(func() { p.Stop() })
	return p
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// TestE2E_ToggleWithFeedback walks the main operating loop: define a
// turnout, toggle it, receive the confirming event from the bus and
// observe the state change.
func TestE2E_ToggleWithFeedback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	hub := newEchoHub(t)
	hub.setEcho(true)
	p := startPanel(t, hub, t.TempDir(), panel.Config{})

	index, err := p.AddTurnout(evMainN, evMainR, "Mainline West")
	if err != nil {
		t.Fatalf("add turnout: %v", err)
	}

	changes := p.Notifier().Subscribe()

	// Unknown state: toggle commands reverse.
	if err := p.Toggle(index); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	select {
	case change := <-changes:
		if change.State != turnout.StateReverse {
			t.Errorf("state = %s, want REVERSE", change.State)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no feedback received")
	}

	got, err := p.Get(index)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != turnout.StateReverse {
		t.Errorf("state = %s, want REVERSE", got.State)
	}
	if got.CommandPending {
		t.Error("pending flag should clear on feedback")
	}

	reports := hub.sentReports()
	if len(reports) != 1 || reports[0] != evMainR {
		t.Errorf("hub saw reports %v, want [%s]", reports, evMainR)
	}

	// Now in Reverse: the next toggle commands normal.
	if err := p.Toggle(index); err != nil {
		t.Fatalf("second toggle: %v", err)
	}

	select {
	case change := <-changes:
		if change.State != turnout.StateNormal {
			t.Errorf("state = %s, want NORMAL", change.State)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no feedback for second toggle")
	}
}

// TestE2E_QueryRefresh verifies that a state refresh sends producer
// queries for both events and that a producer-identified answer
// updates the turnout.
func TestE2E_QueryRefresh(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	hub := newEchoHub(t)
	p := startPanel(t, hub, t.TempDir(), panel.Config{QueryPace: 20 * time.Millisecond})

	index, err := p.AddTurnout(evMainN, evMainR, "Mainline West")
	if err != nil {
		t.Fatalf("add turnout: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.QueryAll(ctx); err != nil {
		t.Fatalf("query all: %v", err)
	}

	waitFor(t, "producer queries", func() bool { return hub.queryCount() >= 2 })

	// A producer answers: the normal event is currently active.
	hub.inject(headerProducerIdValid, evMainN)

	waitFor(t, "state update", func() bool {
		got, err := p.Get(index)
		return err == nil && got.State == turnout.StateNormal
	})
}

// TestE2E_PersistenceAcrossRestart boots a second panel from the file
// the first one saved and checks the list survives with state reset.
func TestE2E_PersistenceAcrossRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()

	hub := newEchoHub(t)
	hub.setEcho(true)
	first := startPanel(t, hub, dir, panel.Config{})

	if _, err := first.AddTurnout(evMainN, evMainR, "Mainline West"); err != nil {
		t.Fatalf("add turnout: %v", err)
	}
	if _, err := first.AddTurnout(evYardN, evYardR, "Yard Lead"); err != nil {
		t.Fatalf("add turnout: %v", err)
	}
	if err := first.Toggle(0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	waitFor(t, "feedback", func() bool {
		got, err := first.Get(0)
		return err == nil && got.State == turnout.StateReverse
	})
	if err := first.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	hub2 := newEchoHub(t)
	second := startPanel(t, hub2, dir, panel.Config{})

	if second.Count() != 2 {
		t.Fatalf("restarted panel has %d turnouts, want 2", second.Count())
	}
	got, err := second.Get(0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Mainline West" {
		t.Errorf("name = %q, want %q", got.Name, "Mainline West")
	}
	// Live state is never persisted.
	if got.State != turnout.StateUnknown {
		t.Errorf("state = %s, want UNKNOWN after restart", got.State)
	}
}

// TestE2E_StaleOverlay lets feedback age out and checks the stale
// overlay appears, then clears on fresh feedback.
func TestE2E_StaleOverlay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	hub := newEchoHub(t)
	p := startPanel(t, hub, t.TempDir(), panel.Config{StaleTimeout: 50 * time.Millisecond})

	index, err := p.AddTurnout(evMainN, evMainR, "Mainline West")
	if err != nil {
		t.Fatalf("add turnout: %v", err)
	}

	hub.inject(headerEventReport, evMainN)
	waitFor(t, "initial feedback", func() bool {
		got, err := p.Get(index)
		return err == nil && got.State == turnout.StateNormal
	})

	time.Sleep(80 * time.Millisecond)
	if marked := p.SweepStale(); marked != 1 {
		t.Fatalf("sweep marked %d, want 1", marked)
	}
	got, err := p.Get(index)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != turnout.StateStale {
		t.Fatalf("state = %s, want STALE", got.State)
	}

	// Fresh feedback clears the overlay.
	hub.inject(headerEventReport, evMainR)
	waitFor(t, "stale cleared", func() bool {
		got, err := p.Get(index)
		return err == nil && got.State == turnout.StateReverse
	})
}

// TestE2E_DiscoveryMode checks unmatched events reach the discovery
// callback only while the mode is on.
func TestE2E_DiscoveryMode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	hub := newEchoHub(t)
	p := startPanel(t, hub, t.TempDir(), panel.Config{})

	var mu sync.Mutex
	var seen []eventid.EventID
	p.OnDiscovery(func(event eventid.EventID) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, event)
	})

	// Mode off: nothing reported.
	hub.inject(headerEventReport, evYardN)
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	if len(seen) != 0 {
		t.Fatalf("discovery reported %v with mode off", seen)
	}
	mu.Unlock()

	p.SetDiscoveryMode(true)
	hub.inject(headerEventReport, evYardN)

	waitFor(t, "discovery report", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == evYardN
	})
}
