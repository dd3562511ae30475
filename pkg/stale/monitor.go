package stale

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ivanbuilds/panel-go/pkg/turnout"
)

// DefaultTimeout is the default staleness window.
const DefaultTimeout = 5 * time.Minute

// DefaultInterval is the default sweep interval when the monitor runs
// its own ticker.
const DefaultInterval = 10 * time.Second

// Sweeper is the store operation the monitor drives. It is satisfied
// by *turnout.Store.
type Sweeper interface {
	SweepStale(timeout time.Duration) int
}

// Compile-time check: *turnout.Store implements Sweeper.
var _ Sweeper = (*turnout.Store)(nil)

// Monitor sweeps a store for stale turnouts.
type Monitor struct {
	mu sync.Mutex

	store   Sweeper
	timeout time.Duration

	// Background sweeping
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewMonitor creates a monitor with the given staleness timeout.
// A zero timeout disables sweeping.
func NewMonitor(store Sweeper, timeout time.Duration) *Monitor {
	return &Monitor{
		store:    store,
		timeout:  timeout,
		interval: DefaultInterval,
	}
}

// SetTimeout changes the staleness window. Zero disables sweeping.
func (m *Monitor) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
}

// Timeout returns the configured staleness window.
func (m *Monitor) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

// SetInterval sets the background sweep interval. Must be called
// before Start.
func (m *Monitor) SetInterval(interval time.Duration) {
	if interval > 0 {
		m.interval = interval
	}
}

// Sweep runs one sweep with the configured timeout and returns the
// number of turnouts newly marked stale. Call it from the owner's
// periodic tick.
func (m *Monitor) Sweep() int {
	m.mu.Lock()
	timeout := m.timeout
	m.mu.Unlock()

	return m.store.SweepStale(timeout)
}

// Start begins background sweeping on an internal ticker. Calling
// Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	if m.running.Swap(true) {
		return
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.sweepLoop()
}

// Stop stops background sweeping and waits for the loop to exit.
func (m *Monitor) Stop() {
	if !m.running.Swap(false) {
		return
	}

	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
