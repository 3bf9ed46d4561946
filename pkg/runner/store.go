package runner

import (
	"context"
	"errors"
	"sync"
)

// ErrRunNotFound indicates no run snapshot exists for the plan.
var ErrRunNotFound = errors.New("run not found")

// Store persists run snapshots keyed by care-plan id. Every state
// transition of an active run is written through so a run survives the
// process and can be resumed.
type Store interface {
	Save(ctx context.Context, run *Run) error
	Load(ctx context.Context, planID string) (*Run, error)
	List(ctx context.Context) ([]*Run, error)
	Delete(ctx context.Context, planID string) error
}

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

// Save keeps a detached copy, matching the behavior of an external store.
func (s *MemoryStore) Save(_ context.Context, run *Run) error {
	copied, err := run.Clone()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.PlanID] = copied

	return nil
}

func (s *MemoryStore) Load(_ context.Context, planID string) (*Run, error) {
	s.mu.RLock()
	run, ok := s.runs[planID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrRunNotFound
	}

	return run.Clone()
}

func (s *MemoryStore) List(_ context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))

	for _, run := range s.runs {
		copied, err := run.Clone()
		if err != nil {
			return nil, err
		}

		runs = append(runs, copied)
	}

	return runs, nil
}

func (s *MemoryStore) Delete(_ context.Context, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, planID)

	return nil
}
