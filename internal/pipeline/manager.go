package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/starford/ansuz/internal/storage"
)

// Manager owns the current Snapshot and rebuilds it when the vault changes.
// Readers call Current and keep working against the snapshot they got; a
// rebuild swaps the pointer atomically and never blocks readers.
type Manager struct {
	store   storage.Provider
	logger  *slog.Logger
	workers int

	snap  atomic.Pointer[Snapshot]
	dirty chan struct{}

	// OnRebuild, when set before Run, is called after every published
	// snapshot. Used to fan rebuild notifications out to SSE clients.
	OnRebuild func(*Snapshot)
}

// NewManager creates a Manager. workers bounds per-pass transform
// concurrency; zero picks a default.
func NewManager(store storage.Provider, logger *slog.Logger, workers int) *Manager {
	return &Manager{
		store:   store,
		logger:  logger,
		workers: workers,
		dirty:   make(chan struct{}, 1),
	}
}

// Rebuild runs a full pass and publishes the result.
func (m *Manager) Rebuild(ctx context.Context) (*Snapshot, error) {
	snap, err := Build(ctx, m.store, m.logger, m.workers)
	if err != nil {
		return nil, err
	}
	m.snap.Store(snap)
	if m.OnRebuild != nil {
		m.OnRebuild(snap)
	}
	return snap, nil
}

// Current returns the latest published snapshot, or nil before the first
// Rebuild completes.
func (m *Manager) Current() *Snapshot {
	return m.snap.Load()
}

// Notify marks the vault dirty. It never blocks: coalescing happens in Run.
func (m *Manager) Notify() {
	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

// Run rebuilds the snapshot whenever the vault is marked dirty, debounced so
// a burst of file events produces one pass. It blocks until ctx is done.
func (m *Manager) Run(ctx context.Context, debounce time.Duration) error {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case <-m.dirty:
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				// Stop and drain before Reset so a tick that raced in
				// while we were handling dirty cannot fire early.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}

		case <-fire:
			if _, err := m.Rebuild(ctx); err != nil {
				m.logger.Error("pipeline: rebuild failed", slog.String("error", err.Error()))
			}
		}
	}
}
