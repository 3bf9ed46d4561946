package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
	"github.com/opencare/careplan/pkg/persistence/file"
)

func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func testPlan(t *testing.T, id string) *models.CarePlan {
	t.Helper()

	return &models.CarePlan{
		ID:        id,
		Title:     "Postoperative surveillance",
		PatientID: "patient-1",
		EpisodeID: "episode-1",
		Blocks:    []*models.Block{},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestFilePersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)

	plan := testPlan(t, "plan-1")
	block, err := models.NewBlock("block-1", models.BlockTypeCondition)
	require.NoError(t, err)
	block.Condition.Condition = "fever above 38.5?"
	plan.Blocks = append(plan.Blocks, block)

	require.NoError(t, p.SaveCarePlan(ctx, plan))

	loaded, err := p.CarePlanByID(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "Postoperative surveillance", loaded.Title)
	require.Len(t, loaded.Blocks, 1)
	require.NotNil(t, loaded.Blocks[0].Condition)
	assert.Equal(t, "fever above 38.5?", loaded.Blocks[0].Condition.Condition)
	assert.Len(t, loaded.Blocks[0].Condition.Options, 2)
}

func TestFilePersistence_SaveAssignsIDAndTimestamps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)

	first := &models.CarePlan{Title: "Sepsis protocol", PatientID: "patient-1", Blocks: []*models.Block{}}
	second := &models.CarePlan{Title: "Delirium screening", PatientID: "patient-2", Blocks: []*models.Block{}}

	require.NoError(t, p.SaveCarePlan(ctx, first))
	require.NoError(t, p.SaveCarePlan(ctx, second))

	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
	assert.False(t, first.UpdatedAt.IsZero())

	// Both plans land in their own document.
	plans, err := p.CarePlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	// A re-save keeps the assigned identity.
	createdAt := first.CreatedAt
	require.NoError(t, p.SaveCarePlan(ctx, first))
	assert.Equal(t, createdAt, first.CreatedAt)

	loaded, err := p.CarePlanByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sepsis protocol", loaded.Title)
}

func TestFilePersistence_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)

	_, err := p.CarePlanByID(ctx, "ghost")
	assert.True(t, persistence.IsCarePlanNotFound(err))

	assert.True(t, persistence.IsCarePlanNotFound(p.DeleteCarePlan(ctx, "ghost")))
}

func TestFilePersistence_ListSkipsNothingAndSorts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)

	older := testPlan(t, "older")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := testPlan(t, "newer")

	require.NoError(t, p.SaveCarePlan(ctx, older))
	require.NoError(t, p.SaveCarePlan(ctx, newer))

	plans, err := p.CarePlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "newer", plans[0].ID)
	assert.Equal(t, "older", plans[1].ID)
}

func TestFilePersistence_EmptyRoot(t *testing.T) {
	t.Parallel()

	p := newTestPersistence(t)

	plans, err := p.CarePlans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestFilePersistence_BlockLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	require.NoError(t, p.SaveCarePlan(ctx, testPlan(t, "plan-1")))

	block, err := models.NewBlock("block-1", models.BlockTypeWait)
	require.NoError(t, err)
	block.Wait.DurationMinutes = 10

	require.NoError(t, p.CreateBlock(ctx, "plan-1", block))
	assert.ErrorIs(t, p.CreateBlock(ctx, "plan-1", block), persistence.ErrBlockAlreadyExists)

	// Payload update leaves relationships alone.
	updated, err := models.NewBlock("block-1", models.BlockTypeWait)
	require.NoError(t, err)
	updated.Wait.DurationMinutes = 20

	require.NoError(t, p.UpdateBlockRelationships(ctx, "plan-1", "block-1", []string{"root"}, []string{}))
	require.NoError(t, p.UpdateBlockPayload(ctx, "plan-1", updated))

	loaded, err := p.CarePlanByID(ctx, "plan-1")
	require.NoError(t, err)
	stored := loaded.BlockByID("block-1")
	require.NotNil(t, stored)
	assert.Equal(t, 20, stored.Wait.DurationMinutes)
	assert.Equal(t, []string{"root"}, stored.ParentIDs)

	require.NoError(t, p.DeleteBlock(ctx, "plan-1", "block-1"))
	assert.True(t, persistence.IsBlockNotFound(p.DeleteBlock(ctx, "plan-1", "block-1")))
}

func TestFilePersistence_UpdatePayloadKeepsBlockType(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := newTestPersistence(t)
	require.NoError(t, p.SaveCarePlan(ctx, testPlan(t, "plan-1")))

	block, err := models.NewBlock("block-1", models.BlockTypeWait)
	require.NoError(t, err)
	block.Wait.DurationMinutes = 10
	require.NoError(t, p.CreateBlock(ctx, "plan-1", block))

	retyped, err := models.NewBlock("block-1", models.BlockTypeAction)
	require.NoError(t, err)

	err = p.UpdateBlockPayload(ctx, "plan-1", retyped)
	assert.True(t, persistence.IsBlockTypeImmutable(err))

	loaded, err := p.CarePlanByID(ctx, "plan-1")
	require.NoError(t, err)
	stored := loaded.BlockByID("block-1")
	require.NotNil(t, stored)
	assert.Equal(t, models.BlockTypeWait, stored.Type)
	require.NotNil(t, stored.Wait)
	assert.Equal(t, 10, stored.Wait.DurationMinutes)
}
