package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/dispatch"
	"github.com/ivanbuilds/panel-go/pkg/eventid"
	"github.com/ivanbuilds/panel-go/pkg/router"
	"github.com/ivanbuilds/panel-go/pkg/stale"
	"github.com/ivanbuilds/panel-go/pkg/storage"
	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// Panel errors.
var (
	// ErrNotRunning indicates a bus operation before Start.
	ErrNotRunning = errors.New("panel not running")

	// ErrAlreadyRunning indicates a second Start call.
	ErrAlreadyRunning = errors.New("panel already running")
)

// Config configures a Panel.
type Config struct {
	// Capacity is the maximum turnout count. Zero uses the store
	// default.
	Capacity int

	// StaleTimeout marks turnouts stale after this long without
	// feedback. Zero disables the monitor.
	StaleTimeout time.Duration

	// QueryPace is the interval between state queries during refresh.
	// Zero uses the dispatcher default.
	QueryPace time.Duration

	// JMRIImportFile is an optional JMRI layout XML merged on Start.
	JMRIImportFile string

	// NotifyBuffer is the per-subscriber state change buffer depth.
	NotifyBuffer int

	// Logger receives operational log records. Nil disables logging.
	Logger *slog.Logger
}

// Panel owns the turnout engine. All methods are safe for concurrent
// use once Start has returned.
type Panel struct {
	store      *turnout.Store
	router     *router.Router
	dispatcher *dispatch.Dispatcher
	monitor    *stale.Monitor
	notifier   *Notifier
	client     BusClient
	persist    PersistenceStore
	logger     *slog.Logger

	jmriImportFile string
	importJMRI     func(path string, existing []turnout.Definition) ([]turnout.Definition, error)

	running atomic.Bool
}

// New wires a panel together. Start must be called before bus
// operations.
func New(client BusClient, persist PersistenceStore, cfg Config) *Panel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var store *turnout.Store
	if cfg.Capacity > 0 {
		store = turnout.NewStoreWithCapacity(cfg.Capacity)
	} else {
		store = turnout.NewStore()
	}

	queryPace := cfg.QueryPace
	if queryPace == 0 {
		queryPace = dispatch.DefaultQueryPace
	}

	p := &Panel{
		store:          store,
		notifier:       NewNotifier(cfg.NotifyBuffer),
		client:         client,
		persist:        persist,
		logger:         logger,
		jmriImportFile: cfg.JMRIImportFile,
		importJMRI:     storage.ImportJMRI,
	}

	p.router = router.New(store)
	p.dispatcher = dispatch.NewWithPace(store, busSender{client}, queryPace)
	p.monitor = stale.NewMonitor(store, cfg.StaleTimeout)

	store.OnStateChange(func(index int, state turnout.State) {
		logger.Debug("turnout state changed", "index", index, "state", state.String())
		p.notifier.Publish(StateChange{Index: index, State: state})
	})
	client.OnReport(p.router.OnReport)
	client.OnProducerIdentified(p.router.OnProducerIdentified)

	return p
}

// busSender narrows the bus client to the dispatcher's sender
// interface. Dispatcher sends are not cancellable; commands either
// reach the local socket or fail immediately.
type busSender struct {
	client BusClient
}

func (s busSender) SendEvent(ev eventid.EventID) error {
	return s.client.SendEvent(context.Background(), ev)
}

func (s busSender) QueryProducer(ev eventid.EventID) error {
	return s.client.QueryProducer(context.Background(), ev)
}

// Compile-time check: busSender implements dispatch.EventSender.
var _ dispatch.EventSender = busSender{}

// Start loads the turnout list, merges a JMRI import when configured,
// connects to the hub and refreshes turnout states in the background.
func (p *Panel) Start(ctx context.Context, hubAddress string) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	if err := p.loadTurnouts(); err != nil {
		p.running.Store(false)
		return err
	}

	if err := p.client.Connect(ctx, hubAddress); err != nil {
		p.running.Store(false)
		return fmt.Errorf("connect: %w", err)
	}

	if p.monitor.Timeout() > 0 {
		p.monitor.Start()
	}

	// Initial state refresh runs paced in the background; feedback
	// arrives through the router as producers answer.
	go func() {
		if err := p.dispatcher.QueryAll(context.Background()); err != nil {
			p.logger.Warn("initial state refresh aborted", "error", err)
		}
	}()

	p.logger.Info("panel started", "turnouts", p.store.Count())
	return nil
}

// loadTurnouts restores the persisted list and merges the optional
// JMRI import. A merged import is saved back immediately so the next
// boot loads the union without re-importing.
func (p *Panel) loadTurnouts() error {
	defs, err := p.persist.Load()
	if err != nil {
		return fmt.Errorf("load turnouts: %w", err)
	}
	for _, def := range defs {
		if _, err := p.store.AddDefinition(def); err != nil {
			p.logger.Warn("skipping persisted turnout",
				"name", def.Name, "error", err)
			continue
		}
		p.client.RegisterEvents(def.EventNormal, def.EventReverse)
	}

	if p.jmriImportFile == "" {
		return nil
	}

	// The merged list is saved inside ImportJMRI so the next boot
	// loads the union without re-importing. A broken layout file must
	// not keep the panel from booting.
	added, err := p.ImportJMRI(p.jmriImportFile)
	if err != nil {
		p.logger.Warn("jmri import failed", "file", p.jmriImportFile, "error", err)
		return nil
	}
	if added > 0 {
		p.logger.Info("merged jmri layout",
			"file", p.jmriImportFile, "imported", added)
	}
	return nil
}

// Stop saves the turnout list and shuts everything down. Safe to call
// more than once.
func (p *Panel) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return nil
	}

	p.monitor.Stop()
	err := p.save()
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	p.notifier.Close()

	p.logger.Info("panel stopped")
	return err
}

// Notifier returns the state change fan-out.
func (p *Panel) Notifier() *Notifier {
	return p.notifier
}

// Count returns the number of turnouts.
func (p *Panel) Count() int {
	return p.store.Count()
}

// Get returns a copy of the turnout at index.
func (p *Panel) Get(index int) (turnout.Turnout, error) {
	return p.store.Get(index)
}

// Snapshot returns a copy of all turnouts in display order.
func (p *Panel) Snapshot() []turnout.Turnout {
	return p.store.Snapshot()
}

// AddTurnout defines a turnout and persists the list. An empty name
// gets a generated one.
func (p *Panel) AddTurnout(eventNormal, eventReverse eventid.EventID, name string) (int, error) {
	index, err := p.store.Add(eventNormal, eventReverse, name)
	if err != nil {
		return 0, err
	}
	p.client.RegisterEvents(eventNormal, eventReverse)
	return index, p.save()
}

// RemoveTurnout deletes the turnout at index and persists the list.
func (p *Panel) RemoveTurnout(index int) error {
	p.store.Remove(index)
	p.reregisterEvents()
	return p.save()
}

// RenameTurnout renames the turnout at index and persists the list.
func (p *Panel) RenameTurnout(index int, name string) error {
	if err := p.store.Rename(index, name); err != nil {
		return err
	}
	return p.save()
}

// SwapTurnouts exchanges two display positions and persists the list.
func (p *Panel) SwapTurnouts(a, b int) error {
	if err := p.store.Swap(a, b); err != nil {
		return err
	}
	return p.save()
}

// FlipPolarity swaps a turnout's event pair and persists the list.
// Use when feedback arrives inverted relative to the physical points.
func (p *Panel) FlipPolarity(index int) error {
	if err := p.store.FlipPolarity(index); err != nil {
		return err
	}
	return p.save()
}

// Toggle commands the turnout at index to its opposite position.
func (p *Panel) Toggle(index int) error {
	if !p.running.Load() {
		return ErrNotRunning
	}
	return p.dispatcher.Toggle(index)
}

// QueryTurnout refreshes one turnout's state from the bus.
func (p *Panel) QueryTurnout(ctx context.Context, index int) error {
	if !p.running.Load() {
		return ErrNotRunning
	}
	return p.dispatcher.QueryTurnout(ctx, index)
}

// QueryAll refreshes every turnout's state from the bus, paced to
// avoid flooding.
func (p *Panel) QueryAll(ctx context.Context) error {
	if !p.running.Load() {
		return ErrNotRunning
	}
	return p.dispatcher.QueryAll(ctx)
}

// SetDiscoveryMode enables or disables event discovery.
func (p *Panel) SetDiscoveryMode(enabled bool) {
	p.router.SetDiscoveryMode(enabled)
	p.logger.Info("discovery mode", "enabled", enabled)
}

// DiscoveryMode reports whether discovery is active.
func (p *Panel) DiscoveryMode() bool {
	return p.router.DiscoveryMode()
}

// OnDiscovery sets the callback for unmatched events seen while
// discovery mode is active.
func (p *Panel) OnDiscovery(cb router.DiscoveryCallback) {
	p.router.OnDiscovery(cb)
}

// ImportJMRI merges turnouts from a JMRI layout file and persists the
// result. Returns how many turnouts were added.
func (p *Panel) ImportJMRI(path string) (int, error) {
	imported, err := p.importJMRI(path, p.store.Definitions())
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}

	added := 0
	for _, def := range imported {
		if _, err := p.store.AddDefinition(def); err != nil {
			p.logger.Warn("skipping imported turnout",
				"name", def.Name, "error", err)
			continue
		}
		p.client.RegisterEvents(def.EventNormal, def.EventReverse)
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, p.save()
}

// SweepStale marks overdue turnouts stale immediately and returns how
// many were marked.
func (p *Panel) SweepStale() int {
	return p.monitor.Sweep()
}

// Save persists the turnout list now.
func (p *Panel) Save() error {
	return p.save()
}

func (p *Panel) save() error {
	if err := p.persist.Save(p.store.Definitions()); err != nil {
		p.logger.Error("save turnouts failed", "error", err)
		return fmt.Errorf("save turnouts: %w", err)
	}
	return nil
}

// reregisterEvents rebuilds the client's registered event set from
// the current turnout list.
func (p *Panel) reregisterEvents() {
	p.client.UnregisterAllEvents()
	for _, def := range p.store.Definitions() {
		p.client.RegisterEvents(def.EventNormal, def.EventReverse)
	}
}
