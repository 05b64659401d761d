package reconciler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/datamancy/corpusd/internal/checkpoint"
	"github.com/datamancy/corpusd/internal/config"
	"github.com/datamancy/corpusd/internal/docstore"
	"github.com/datamancy/corpusd/internal/events"
	"github.com/datamancy/corpusd/internal/fingerprint"
	"github.com/datamancy/corpusd/internal/source"
)

// Manager owns one reconciler per configured source and enforces the
// one-cycle-per-source rule: a trigger for a source with a running
// cycle is rejected rather than queued.
type Manager struct {
	cycles *CycleStore
	hub    *events.Hub

	mu          sync.Mutex
	reconcilers map[string]*Reconciler
	running     map[string]bool

	wg       sync.WaitGroup
	schedCtx context.Context
	cancel   context.CancelFunc
}

// ErrCycleRunning is returned when a trigger is rejected because the
// source already has a cycle in flight.
var ErrCycleRunning = fmt.Errorf("a cycle is already running for this source")

// ErrUnknownSource is returned for triggers against unconfigured sources.
var ErrUnknownSource = fmt.Errorf("unknown source")

// NewManager builds reconcilers for every configured source.
func NewManager(cfg *config.Config, checkpoints *checkpoint.Store, fingerprints *fingerprint.Store,
	store *docstore.Store, cycles *CycleStore, hub *events.Hub) (*Manager, error) {
	m := &Manager{
		cycles:      cycles,
		hub:         hub,
		reconcilers: make(map[string]*Reconciler, len(cfg.Sources)),
		running:     make(map[string]bool, len(cfg.Sources)),
	}
	for _, sc := range cfg.Sources {
		adapter, err := source.New(sc)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		m.reconcilers[sc.Name] = New(sc, adapter, checkpoints, fingerprints, store, cycles, hub)
	}
	return m, nil
}

// Trigger starts a cycle for the named source and returns its ID
// without waiting for it to finish.
func (m *Manager) Trigger(ctx context.Context, sourceName string) (string, error) {
	m.mu.Lock()
	r, ok := m.reconcilers[sourceName]
	if !ok {
		m.mu.Unlock()
		return "", ErrUnknownSource
	}
	if m.running[sourceName] {
		m.mu.Unlock()
		return "", ErrCycleRunning
	}
	m.running[sourceName] = true
	m.mu.Unlock()

	cycle, err := m.cycles.Create(ctx, sourceName)
	if err != nil {
		m.clearRunning(sourceName)
		return "", err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.clearRunning(sourceName)
		runCtx := m.backgroundContext()
		if _, err := r.Run(runCtx, cycle.ID); err != nil {
			log.Printf("reconciler[%s]: cycle %s: %v", sourceName, cycle.ID, err)
		}
	}()

	return cycle.ID, nil
}

// RunOnce executes a cycle synchronously, for one-shot CLI use.
func (m *Manager) RunOnce(ctx context.Context, sourceName string) (*Cycle, error) {
	m.mu.Lock()
	r, ok := m.reconcilers[sourceName]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUnknownSource
	}
	if m.running[sourceName] {
		m.mu.Unlock()
		return nil, ErrCycleRunning
	}
	m.running[sourceName] = true
	m.mu.Unlock()
	defer m.clearRunning(sourceName)

	cycle, err := m.cycles.Create(ctx, sourceName)
	if err != nil {
		return nil, err
	}
	if _, err := r.Run(ctx, cycle.ID); err != nil {
		return m.cycles.Get(context.Background(), cycle.ID)
	}
	return m.cycles.Get(ctx, cycle.ID)
}

// Sources returns the configured source names.
func (m *Manager) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.reconcilers))
	for name := range m.reconcilers {
		names = append(names, name)
	}
	return names
}

// Start launches the cadence scheduler. Sources without a cadence are
// trigger-only.
func (m *Manager) Start(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.schedCtx = ctx
	m.cancel = cancel
	m.mu.Unlock()

	for _, sc := range cfg.Sources {
		if sc.Cadence <= 0 {
			continue
		}
		m.wg.Add(1)
		go m.schedule(ctx, sc.Name, sc.Cadence)
	}
}

func (m *Manager) schedule(ctx context.Context, sourceName string, cadence time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Trigger(ctx, sourceName); err != nil && err != ErrCycleRunning {
				log.Printf("reconciler[%s]: scheduled trigger: %v", sourceName, err)
			}
		}
	}
}

// Stop cancels scheduled work and waits for in-flight cycles. In-flight
// cycles observe the cancellation and stop without committing their
// checkpoint.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) clearRunning(sourceName string) {
	m.mu.Lock()
	delete(m.running, sourceName)
	m.mu.Unlock()
}

// backgroundContext returns the scheduler context when Start was
// called, so Stop cancels triggered cycles too.
func (m *Manager) backgroundContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schedCtx == nil {
		return context.Background()
	}
	return m.schedCtx
}
