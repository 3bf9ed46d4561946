package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/opencare/careplan/pkg/models"
)

// Manager owns the active runs of this process: one run per care plan, one
// countdown at most per run. All transitions go through a per-plan lock and
// are written through to the Store, so a run can be resumed after the
// process or node goes away.
//
// The countdown is an explicit cancellable task: a goroutine driven by a
// clockwork ticker, torn down the moment the run stops, the block changes,
// the countdown hits zero or the manager shuts down. No tick survives the
// state that armed it.
type Manager struct {
	store  Store
	clock  clockwork.Clock
	logger *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	mu          sync.Mutex
	run         *Run
	cancelTimer context.CancelFunc
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithClock substitutes the wall clock, used by tests to drive the
// countdown deterministically.
func WithClock(clock clockwork.Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates a run manager backed by the given store.
func NewManager(store Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		store:      store,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		rootCtx:    ctx,
		rootCancel: cancel,
		active:     make(map[string]*activeRun),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins a fresh run over the plan, replacing any previous run for
// the same plan.
func (m *Manager) Start(ctx context.Context, plan *models.CarePlan) (*Run, error) {
	run, err := NewRun(plan, m.clock.Now())
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.active[plan.ID]; ok {
		existing.mu.Lock()
		existing.stopTimer()
		existing.mu.Unlock()
	}

	ar := &activeRun{run: run}
	m.active[plan.ID] = ar
	m.mu.Unlock()

	if err := m.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to persist run start: %w", err)
	}

	return run.Clone()
}

// Get returns the run for the plan, resuming it from the store when it is
// not active in this process. A resumed run never has a live countdown; the
// user restarts the timer explicitly.
func (m *Manager) Get(ctx context.Context, planID string) (*Run, error) {
	ar, err := m.acquire(ctx, planID)
	if err != nil {
		return nil, err
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	return ar.run.Clone()
}

func (m *Manager) acquire(ctx context.Context, planID string) (*activeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ar, ok := m.active[planID]; ok {
		return ar, nil
	}

	run, err := m.store.Load(ctx, planID)
	if err != nil {
		return nil, err
	}

	// A snapshot from another process may carry an armed timer that no
	// longer ticks anywhere. Disarm it; restarts are explicit.
	run.TimerActive = false

	ar := &activeRun{run: run}
	m.active[planID] = ar

	return ar, nil
}

// mutate runs fn under the plan's lock and writes the snapshot through.
func (m *Manager) mutate(ctx context.Context, planID string, fn func(*Run) error) (*Run, error) {
	ar, err := m.acquire(ctx, planID)
	if err != nil {
		return nil, err
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	if err := fn(ar.run); err != nil {
		return nil, err
	}

	ar.run.UpdatedAt = m.clock.Now()

	if err := m.store.Save(ctx, ar.run); err != nil {
		return nil, fmt.Errorf("failed to persist run state: %w", err)
	}

	return ar.run.Clone()
}

// ToggleTask flips a task on the current ACTION block, auto-advancing when
// the checklist is complete.
func (m *Manager) ToggleTask(ctx context.Context, planID, taskID string) (*Run, bool, error) {
	advanced := false

	run, err := m.mutate(ctx, planID, func(run *Run) error {
		var err error
		advanced, err = run.ToggleTask(taskID)

		return err
	})

	return run, advanced, err
}

// ChooseOption records the selected option of the current CONDITION block
// and advances.
func (m *Manager) ChooseOption(ctx context.Context, planID, optionID string) (*Run, error) {
	return m.mutate(ctx, planID, func(run *Run) error {
		return run.ChooseOption(optionID)
	})
}

// StartTimer arms the countdown of the current WAIT block and launches the
// ticking task. Zero-duration blocks complete immediately.
func (m *Manager) StartTimer(ctx context.Context, planID string) (*Run, error) {
	ar, err := m.acquire(ctx, planID)
	if err != nil {
		return nil, err
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	immediate, err := ar.run.beginCountdown()
	if err != nil {
		return nil, err
	}

	ar.run.UpdatedAt = m.clock.Now()

	if err := m.store.Save(ctx, ar.run); err != nil {
		return nil, fmt.Errorf("failed to persist run state: %w", err)
	}

	if !immediate && ar.cancelTimer == nil {
		// The ticker outlives the request: it is bound to the manager's
		// root context, not the caller's.
		timerCtx, cancel := context.WithCancel(m.rootCtx)
		ar.cancelTimer = cancel

		go m.countdown(timerCtx, ar)
	}

	return ar.run.Clone()
}

func (m *Manager) countdown(ctx context.Context, ar *activeRun) {
	ticker := m.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if m.handleTick(ar) {
				return
			}
		}
	}
}

// handleTick consumes one second and reports whether the ticking task
// should end, either because the countdown finished or because one of the
// owning conditions flipped underneath it.
func (m *Manager) handleTick(ar *activeRun) bool {
	ar.mu.Lock()
	defer ar.mu.Unlock()

	done := ar.run.tickSecond()
	ar.run.UpdatedAt = m.clock.Now()

	err := m.store.Save(m.rootCtx, ar.run)
	if err != nil {
		m.logger.Error("failed to persist countdown tick",
			"plan_id", ar.run.PlanID, "error", err)
	}

	if done {
		ar.stopTimer()
	}

	return done
}

// Skip moves past the current WAIT block without waiting for expiry and
// tears down any live countdown.
func (m *Manager) Skip(ctx context.Context, planID string) (*Run, error) {
	ar, err := m.acquire(ctx, planID)
	if err != nil {
		return nil, err
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	if err := ar.run.Skip(); err != nil {
		return nil, err
	}

	ar.stopTimer()
	ar.run.UpdatedAt = m.clock.Now()

	if err := m.store.Save(ctx, ar.run); err != nil {
		return nil, fmt.Errorf("failed to persist run state: %w", err)
	}

	return ar.run.Clone()
}

// Stop leaves running mode, disarms the countdown and keeps the snapshot
// so the run can be resumed later.
func (m *Manager) Stop(ctx context.Context, planID string) (*Run, error) {
	ar, err := m.acquire(ctx, planID)
	if err != nil {
		return nil, err
	}

	ar.mu.Lock()
	defer ar.mu.Unlock()

	ar.run.Stop()
	ar.stopTimer()
	ar.run.UpdatedAt = m.clock.Now()

	if err := m.store.Save(ctx, ar.run); err != nil {
		return nil, fmt.Errorf("failed to persist run state: %w", err)
	}

	return ar.run.Clone()
}

// Discard removes the run entirely.
func (m *Manager) Discard(ctx context.Context, planID string) error {
	m.mu.Lock()
	if ar, ok := m.active[planID]; ok {
		ar.mu.Lock()
		ar.stopTimer()
		ar.mu.Unlock()
		delete(m.active, planID)
	}
	m.mu.Unlock()

	return m.store.Delete(ctx, planID)
}

// Shutdown tears down every live countdown. Run snapshots stay in the
// store.
func (m *Manager) Shutdown() {
	m.rootCancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ar := range m.active {
		ar.mu.Lock()
		ar.cancelTimer = nil
		ar.mu.Unlock()
	}
}

// stopTimer cancels the run's ticking task. Callers hold ar.mu.
func (ar *activeRun) stopTimer() {
	if ar.cancelTimer != nil {
		ar.cancelTimer()
		ar.cancelTimer = nil
	}
}
