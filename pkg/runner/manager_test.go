package runner

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencare/careplan/pkg/log"
	"github.com/opencare/careplan/pkg/models"
)

func newTestManager(t *testing.T, clock clockwork.Clock) (*Manager, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	manager := NewManager(store, log.WithModule("runner-test"), WithClock(clock))
	t.Cleanup(manager.Shutdown)

	return manager, store
}

func TestManager_StartAndResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager, store := newTestManager(t, clockwork.NewFakeClock())

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{actionBlock(t, "a", "t")}}

	run, err := manager.Start(ctx, plan)
	require.NoError(t, err)
	assert.True(t, run.Running)
	assert.Equal(t, 0, run.CurrentIndex)

	// A second manager over the same store resumes from the snapshot.
	other := NewManager(store, log.WithModule("runner-test"))
	t.Cleanup(other.Shutdown)

	resumed, err := other.Get(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, run.CurrentIndex, resumed.CurrentIndex)
	assert.False(t, resumed.TimerActive, "resumed runs never carry a live timer")
}

func TestManager_GetUnknownRun(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, clockwork.NewFakeClock())

	_, err := manager.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestManager_ToggleTaskPersistsEveryTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager, store := newTestManager(t, clockwork.NewFakeClock())

	block := actionBlock(t, "a", "t1", "t2")
	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{block, waitBlock(t, "w", 1)}}

	started, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	tasks := started.Blocks[0].Action.Tasks

	_, advanced, err := manager.ToggleTask(ctx, "plan-1", tasks[0].ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	run, advanced, err := manager.ToggleTask(ctx, "plan-1", tasks[1].ID)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, 1, run.CurrentIndex)

	stored, err := store.Load(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentIndex)
}

func TestManager_CountdownAdvancesAtZero(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	manager, _ := newTestManager(t, clock)

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{
		waitBlock(t, "w", 1),
		actionBlock(t, "a", "t"),
	}}

	_, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	run, err := manager.StartTimer(ctx, "plan-1")
	require.NoError(t, err)
	require.True(t, run.TimerActive)
	require.Equal(t, 60, run.RemainingSeconds)

	for i := 0; i < 60; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Second)

		left := 60 - i - 1
		require.Eventually(t, func() bool {
			current, err := manager.Get(ctx, "plan-1")
			if err != nil {
				return false
			}

			return current.RemainingSeconds == left
		}, 2*time.Second, time.Millisecond, "tick %d not consumed", i)
	}

	final, err := manager.Get(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 0, final.RemainingSeconds)
	assert.False(t, final.TimerActive)
	assert.Equal(t, 1, final.CurrentIndex)
}

func TestManager_RestartDisarmsPreviousCountdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	manager, _ := newTestManager(t, clock)

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{
		waitBlock(t, "w", 5),
		actionBlock(t, "a", "t"),
	}}

	_, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	armed, err := manager.StartTimer(ctx, "plan-1")
	require.NoError(t, err)
	require.True(t, armed.TimerActive)

	// Starting over while the countdown is live must cancel it.
	restarted, err := manager.Start(ctx, plan)
	require.NoError(t, err)
	assert.False(t, restarted.TimerActive)
	assert.Zero(t, restarted.RemainingSeconds)

	// Ticks from the old countdown must not reach the fresh run.
	clock.Advance(5 * time.Minute)

	after, err := manager.Get(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 0, after.CurrentIndex)
	assert.False(t, after.TimerActive)
	assert.Zero(t, after.RemainingSeconds)
}

func TestManager_SkipTearsDownTimer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	manager, _ := newTestManager(t, clock)

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{
		waitBlock(t, "w", 5),
		actionBlock(t, "a", "t"),
	}}

	_, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	_, err = manager.StartTimer(ctx, "plan-1")
	require.NoError(t, err)

	run, err := manager.Skip(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.CurrentIndex)
	assert.False(t, run.TimerActive)

	// Ticks after the skip must not move anything.
	clock.Advance(5 * time.Second)

	after, err := manager.Get(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, after.CurrentIndex)
	assert.Zero(t, after.RemainingSeconds)
}

func TestManager_StopDisarmsCountdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	manager, _ := newTestManager(t, clock)

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{waitBlock(t, "w", 2)}}

	_, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	_, err = manager.StartTimer(ctx, "plan-1")
	require.NoError(t, err)

	run, err := manager.Stop(ctx, "plan-1")
	require.NoError(t, err)
	assert.False(t, run.Running)
	assert.False(t, run.TimerActive)

	_, _, err = manager.ToggleTask(ctx, "plan-1", "any")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestManager_ZeroDurationWait(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager, _ := newTestManager(t, clockwork.NewFakeClock())

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{
		waitBlock(t, "w", 0),
		actionBlock(t, "a", "t"),
	}}

	_, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	run, err := manager.StartTimer(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, 1, run.CurrentIndex, "zero duration completes immediately")
	assert.False(t, run.TimerActive)
}

func TestManager_DiscardRemovesRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	manager, store := newTestManager(t, clockwork.NewFakeClock())

	plan := &models.CarePlan{ID: "plan-1", Blocks: []*models.Block{actionBlock(t, "a", "t")}}

	_, err := manager.Start(ctx, plan)
	require.NoError(t, err)

	require.NoError(t, manager.Discard(ctx, "plan-1"))

	_, err = store.Load(ctx, "plan-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
