package busclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ivanbuilds/panel-go/pkg/buslog"
	"github.com/ivanbuilds/panel-go/pkg/eventid"
)

// Connection defaults.
const (
	// DefaultConnectTimeout bounds the TCP dial and alias reservation.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultReserveDelay is the standard wait between the CID frames
	// and the reserve-ID frame, during which other nodes may object.
	DefaultReserveDelay = 200 * time.Millisecond

	// maxAliasAttempts bounds alias reservation retries.
	maxAliasAttempts = 16
)

// Client errors.
var (
	// ErrNotConnected indicates an operation on a closed or
	// never-connected client.
	ErrNotConnected = errors.New("not connected to hub")

	// ErrAlreadyConnected indicates a second Connect call.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrAliasExhausted indicates alias reservation failed repeatedly.
	ErrAliasExhausted = errors.New("could not reserve a node alias")
)

// ReportHandler receives unconditional event reports from the bus.
type ReportHandler func(event eventid.EventID)

// ProducerIdentifiedHandler receives producer-identified responses.
// valid is true when the producer reports the event as currently
// active.
type ProducerIdentifiedHandler func(event eventid.EventID, valid bool)

// Config configures a bus client.
type Config struct {
	// NodeID is the panel's 48-bit node identifier. Required.
	NodeID eventid.NodeID

	// ConnectTimeout bounds Connect (default: 30s).
	ConnectTimeout time.Duration

	// ReserveDelay is the alias objection window (default: 200ms).
	ReserveDelay time.Duration

	// Logger receives operational log records. Nil disables logging.
	Logger *slog.Logger

	// Trace receives per-frame capture events. Nil disables capture.
	Trace buslog.Logger
}

// Client is an LCC node attached to a TCP GridConnect hub. It is safe
// for concurrent use once connected.
type Client struct {
	config Config
	logger *slog.Logger
	trace  buslog.Logger

	mu         sync.Mutex
	conn       net.Conn
	connID     string
	alias      uint16
	registered map[uint64]struct{}

	cbMu         sync.RWMutex
	onReport     ReportHandler
	onIdentified ProducerIdentifiedHandler

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a bus client. Connect must be called before any bus
// operation.
func New(config Config) *Client {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.ReserveDelay == 0 {
		config.ReserveDelay = DefaultReserveDelay
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var trace buslog.Logger = buslog.NoopLogger{}
	if config.Trace != nil {
		trace = config.Trace
	}

	return &Client{
		config:     config,
		logger:     logger,
		trace:      trace,
		registered: make(map[uint64]struct{}),
	}
}

// OnReport sets the event report handler. Set before Connect.
func (c *Client) OnReport(handler ReportHandler) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onReport = handler
}

// OnProducerIdentified sets the producer-identified handler.
// Set before Connect.
func (c *Client) OnProducerIdentified(handler ProducerIdentifiedHandler) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.onIdentified = handler
}

// RegisterEvents records a turnout's event pair so the client can
// answer consumer-identify queries for them.
func (c *Client) RegisterEvents(eventNormal, eventReverse eventid.EventID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered[uint64(eventNormal)] = struct{}{}
	c.registered[uint64(eventReverse)] = struct{}{}
}

// UnregisterAllEvents clears the registered event set.
func (c *Client) UnregisterAllEvents() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = make(map[uint64]struct{})
}

// Alias returns the reserved 12-bit alias, zero before Connect.
func (c *Client) Alias() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

// ConnectionID returns the ID correlating log and trace records for
// the current connection, empty before Connect.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Connect dials the hub, reserves a node alias, announces the node
// and starts the read loop.
func (c *Client) Connect(ctx context.Context, address string) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		c.running.Store(false)
		return fmt.Errorf("dial hub: %w", err)
	}

	connID := uuid.New().String()
	reader := bufio.NewReader(conn)

	alias, err := c.reserveAlias(ctx, conn, reader, connID)
	if err != nil {
		conn.Close()
		c.running.Store(false)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.alias = alias
	c.mu.Unlock()

	// AMD maps the alias to the full node ID, then the node announces
	// itself as initialized.
	if err := c.writeFrame(Frame{
		ID:   controlHeader(controlAMD, alias),
		Data: nodeIDBytes(c.config.NodeID),
	}, buslog.KindControl); err != nil {
		c.teardown()
		return fmt.Errorf("send alias map definition: %w", err)
	}
	if err := c.writeFrame(Frame{
		ID:   openLCBHeader(mtiInitComplete, alias),
		Data: nodeIDBytes(c.config.NodeID),
	}, buslog.KindControl); err != nil {
		c.teardown()
		return fmt.Errorf("send initialization complete: %w", err)
	}

	c.logger.Info("connected to hub",
		"address", address,
		"conn_id", connID,
		"node_id", c.config.NodeID.String(),
		"alias", fmt.Sprintf("%03X", alias))

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.readLoop(loopCtx, reader)

	return nil
}

// reserveAlias runs the CID/RID sequence until an alias survives the
// objection window without a competing claim.
func (c *Client) reserveAlias(ctx context.Context, conn net.Conn, reader *bufio.Reader, connID string) (uint16, error) {
	seq := newAliasSeq(uint64(c.config.NodeID))
	nodeID := uint64(c.config.NodeID)

	for attempt := 0; attempt < maxAliasAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		alias := seq.next()

		for n := 1; n <= 4; n++ {
			frame := Frame{ID: cidHeader(n, nodeID, alias)}
			if err := writeFrameTo(conn, frame); err != nil {
				return 0, fmt.Errorf("send check-id frame: %w", err)
			}
			c.traceFrame(frame, connID, buslog.DirectionOut, buslog.KindControl)
		}

		contested, err := c.watchForContest(conn, reader, connID, alias)
		if err != nil {
			return 0, err
		}
		if contested {
			c.logger.Debug("alias contested, retrying",
				"conn_id", connID, "alias", fmt.Sprintf("%03X", alias))
			continue
		}

		frame := Frame{ID: controlHeader(controlRID, alias)}
		if err := writeFrameTo(conn, frame); err != nil {
			return 0, fmt.Errorf("send reserve-id frame: %w", err)
		}
		c.traceFrame(frame, connID, buslog.DirectionOut, buslog.KindControl)
		return alias, nil
	}

	return 0, ErrAliasExhausted
}

// watchForContest reads frames for the objection window and reports
// whether another node used the candidate alias.
func (c *Client) watchForContest(conn net.Conn, reader *bufio.Reader, connID string, alias uint16) (bool, error) {
	deadline := time.Now().Add(c.config.ReserveDelay)
	defer conn.SetReadDeadline(time.Time{})

	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return false, err
		}
		line, err := reader.ReadString(';')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return false, nil
			}
			return false, fmt.Errorf("read during alias reservation: %w", err)
		}

		frame, perr := ParseGridConnect(line)
		if perr != nil {
			continue
		}
		c.traceFrame(frame, connID, buslog.DirectionIn, buslog.KindControl)
		if frame.SourceAlias() == alias {
			return true, nil
		}
	}
}

// SendEvent publishes an unconditional event report, the LCC form of
// a turnout command.
func (c *Client) SendEvent(ctx context.Context, event eventid.EventID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	alias := c.alias
	c.mu.Unlock()

	ev := event.Bytes()
	err := c.writeFrame(Frame{
		ID:   openLCBHeader(mtiEventReport, alias),
		Data: ev[:],
	}, buslog.KindReport)
	if err != nil {
		return err
	}
	c.logger.Debug("sent event", "event_id", event.String())
	return nil
}

// QueryProducer asks the bus which node produces the event. Producers
// answer with producer-identified carrying their current state; this
// never moves a turnout.
func (c *Client) QueryProducer(ctx context.Context, event eventid.EventID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	alias := c.alias
	c.mu.Unlock()

	ev := event.Bytes()
	return c.writeFrame(Frame{
		ID:   openLCBHeader(mtiProducerIdentify, alias),
		Data: ev[:],
	}, buslog.KindProducerQuery)
}

// Close releases the alias and shuts the connection down. The read
// loop is stopped before the socket closes.
func (c *Client) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	conn := c.conn
	alias := c.alias
	c.mu.Unlock()

	var err error
	if conn != nil {
		// AMR tells the bus the alias is free again.
		frame := Frame{
			ID:   controlHeader(controlAMR, alias),
			Data: nodeIDBytes(c.config.NodeID),
		}
		if line, eerr := EncodeGridConnect(frame); eerr == nil {
			_, _ = conn.Write([]byte(line))
		}
		err = conn.Close()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()

	c.logger.Info("disconnected from hub", "conn_id", c.connID)
	return err
}

// teardown reverts a half-finished Connect.
func (c *Client) teardown() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.running.Store(false)
}

// readLoop consumes frames from the hub until the connection closes.
func (c *Client) readLoop(ctx context.Context, reader *bufio.Reader) {
	defer c.wg.Done()

	for {
		line, err := reader.ReadString(';')
		if err != nil {
			if ctx.Err() == nil && c.running.Load() {
				c.logger.Warn("hub connection lost", "conn_id", c.connID, "error", err)
			}
			return
		}

		frame, perr := ParseGridConnect(line)
		if perr != nil {
			c.logger.Debug("skipping malformed frame", "frame", line)
			c.trace.Log(buslog.Event{
				Timestamp:    time.Now(),
				ConnectionID: c.connID,
				Direction:    buslog.DirectionIn,
				Kind:         buslog.KindError,
				Frame:        line,
				Detail:       perr.Error(),
			})
			continue
		}

		c.handleFrame(frame)
	}
}

// handleFrame dispatches one incoming frame.
func (c *Client) handleFrame(frame Frame) {
	if !frame.IsOpenLCB() {
		c.traceFrame(frame, c.connID, buslog.DirectionIn, buslog.KindControl)
		return
	}

	switch frame.MTI() {
	case mtiEventReport:
		if len(frame.Data) != 8 {
			return
		}
		event := eventid.FromBytes(frame.Data)
		c.traceEvent(frame, buslog.KindReport, uint64(event), nil)
		c.cbMu.RLock()
		handler := c.onReport
		c.cbMu.RUnlock()
		if handler != nil {
			handler(event)
		}

	case mtiProducerIdentifiedValid, mtiProducerIdentifiedInval, mtiProducerIdentifiedUnkn:
		if len(frame.Data) != 8 {
			return
		}
		event := eventid.FromBytes(frame.Data)
		valid := frame.MTI() == mtiProducerIdentifiedValid
		c.traceEvent(frame, buslog.KindProducerIdentified, uint64(event), &valid)
		if frame.MTI() == mtiProducerIdentifiedUnkn {
			// The producer does not know its own state; nothing to learn.
			return
		}
		c.cbMu.RLock()
		handler := c.onIdentified
		c.cbMu.RUnlock()
		if handler != nil {
			handler(event, valid)
		}

	case mtiConsumerIdentify:
		if len(frame.Data) != 8 {
			return
		}
		event := eventid.FromBytes(frame.Data)
		c.traceEvent(frame, buslog.KindControl, uint64(event), nil)
		c.answerConsumerIdentify(event)

	case mtiIdentifyEventsGlobal:
		c.traceFrame(frame, c.connID, buslog.DirectionIn, buslog.KindControl)
		c.answerIdentifyGlobal()

	default:
		c.traceFrame(frame, c.connID, buslog.DirectionIn, buslog.KindControl)
	}
}

// answerConsumerIdentify replies consumer-identified-unknown when the
// queried event belongs to a registered turnout. The panel consumes
// feedback but has no authoritative state of its own.
func (c *Client) answerConsumerIdentify(event eventid.EventID) {
	c.mu.Lock()
	_, ok := c.registered[uint64(event)]
	alias := c.alias
	c.mu.Unlock()
	if !ok {
		return
	}

	ev := event.Bytes()
	_ = c.writeFrame(Frame{
		ID:   openLCBHeader(mtiConsumerIdentifiedUnkn, alias),
		Data: ev[:],
	}, buslog.KindConsumerIdentified)
}

// answerIdentifyGlobal reports every registered event as consumed.
func (c *Client) answerIdentifyGlobal() {
	c.mu.Lock()
	events := make([]uint64, 0, len(c.registered))
	for ev := range c.registered {
		events = append(events, ev)
	}
	alias := c.alias
	c.mu.Unlock()

	for _, ev := range events {
		b := eventid.EventID(ev).Bytes()
		_ = c.writeFrame(Frame{
			ID:   openLCBHeader(mtiConsumerIdentifiedUnkn, alias),
			Data: b[:],
		}, buslog.KindConsumerIdentified)
	}
}

// writeFrame encodes and sends a frame on the current connection.
func (c *Client) writeFrame(frame Frame, kind buslog.Kind) error {
	c.mu.Lock()
	conn := c.conn
	connID := c.connID
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := writeFrameTo(conn, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	c.traceFrame(frame, connID, buslog.DirectionOut, kind)
	return nil
}

// writeFrameTo encodes and writes a frame to an arbitrary connection.
// Used during Connect before the client fields are set.
func writeFrameTo(conn net.Conn, frame Frame) error {
	line, err := EncodeGridConnect(frame)
	if err != nil {
		return err
	}
	_, err = conn.Write([]byte(line))
	return err
}

// traceFrame captures a frame without event payload interpretation.
func (c *Client) traceFrame(frame Frame, connID string, dir buslog.Direction, kind buslog.Kind) {
	line, err := EncodeGridConnect(frame)
	if err != nil {
		return
	}
	c.trace.Log(buslog.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Kind:         kind,
		SourceAlias:  frame.SourceAlias(),
		Frame:        line,
	})
}

// traceEvent captures a frame carrying an event identifier.
func (c *Client) traceEvent(frame Frame, kind buslog.Kind, event uint64, valid *bool) {
	line, err := EncodeGridConnect(frame)
	if err != nil {
		return
	}
	c.trace.Log(buslog.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    buslog.DirectionIn,
		Kind:         kind,
		EventID:      event,
		Valid:        valid,
		SourceAlias:  frame.SourceAlias(),
		Frame:        line,
	})
}

// nodeIDBytes returns the 6-byte big-endian form of a node ID.
func nodeIDBytes(id eventid.NodeID) []byte {
	v := uint64(id)
	return []byte{
		byte(v >> 40), byte(v >> 32), byte(v >> 24),
		byte(v >> 16), byte(v >> 8), byte(v),
	}
}
