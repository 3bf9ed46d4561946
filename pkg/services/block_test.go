package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence/file"
)

func newBlockFixture(t *testing.T) (*Block, *CarePlan, string) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	plans := NewCarePlan(p, nil, nil, testLogger())
	blocks := NewBlock(p, nil, testLogger())

	plan, err := plans.CreateCarePlan(context.Background(), validCreateRequest())
	require.NoError(t, err)

	return blocks, plans, plan.ID
}

func draftBlock(t *testing.T, blockType models.BlockType) *models.Block {
	t.Helper()

	block, err := models.NewBlock(models.NewTemporaryBlockID(), blockType)
	require.NoError(t, err)

	return block
}

func TestBlock_CreateAssignsServerID(t *testing.T) {
	t.Parallel()

	s, plans, planID := newBlockFixture(t)
	ctx := context.Background()

	draft := draftBlock(t, models.BlockTypeAction)
	draftID := draft.ID

	created, err := s.CreateBlock(ctx, planID, draft)
	require.NoError(t, err)
	assert.NotEqual(t, draftID, created.ID)
	assert.False(t, models.IsTemporaryID(created.ID))

	plan, err := plans.GetCarePlan(ctx, planID)
	require.NoError(t, err)
	require.Len(t, plan.Blocks, 1)
	assert.Equal(t, created.ID, plan.Blocks[0].ID)
}

func TestBlock_CreateRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	s, _, planID := newBlockFixture(t)
	ctx := context.Background()

	draft := draftBlock(t, models.BlockTypeCondition)
	draft.Condition.Options = draft.Condition.Options[:1]

	_, err := s.CreateBlock(ctx, planID, draft)
	assert.ErrorIs(t, err, ErrInvalidBlockPayload)
	assert.True(t, IsValidationError(err))

	_, err = s.CreateBlock(ctx, "missing", draftBlock(t, models.BlockTypeAction))
	assert.ErrorIs(t, err, ErrCarePlanNotFound)
}

func TestBlock_UpdatePayload(t *testing.T) {
	t.Parallel()

	s, plans, planID := newBlockFixture(t)
	ctx := context.Background()

	created, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeWait))
	require.NoError(t, err)

	created.Wait.DurationMinutes = 45
	require.NoError(t, s.UpdateBlockPayload(ctx, planID, created))

	plan, err := plans.GetCarePlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, 45, plan.Blocks[0].Wait.DurationMinutes)

	ghost := draftBlock(t, models.BlockTypeWait)
	ghost.ID = models.NewBlockID()
	err = s.UpdateBlockPayload(ctx, planID, ghost)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestBlock_UpdatePayloadRejectsTypeChange(t *testing.T) {
	t.Parallel()

	s, plans, planID := newBlockFixture(t)
	ctx := context.Background()

	created, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeWait))
	require.NoError(t, err)

	retyped, err := models.NewBlock(created.ID, models.BlockTypeAction)
	require.NoError(t, err)
	retyped.Action.Tasks = []*models.Task{{ID: "t1", Text: "check vitals"}}

	err = s.UpdateBlockPayload(ctx, planID, retyped)
	assert.ErrorIs(t, err, ErrBlockTypeImmutable)
	assert.True(t, IsValidationError(err))

	plan, err := plans.GetCarePlan(ctx, planID)
	require.NoError(t, err)
	assert.Equal(t, models.BlockTypeWait, plan.Blocks[0].Type)
}

func TestBlock_UpdateRelationshipsRejectsSelfReference(t *testing.T) {
	t.Parallel()

	s, _, planID := newBlockFixture(t)
	ctx := context.Background()

	created, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeAction))
	require.NoError(t, err)

	err = s.UpdateBlockRelationships(ctx, planID, created.ID, []string{created.ID}, nil)
	assert.ErrorIs(t, err, ErrSelfReference)

	err = s.UpdateBlockRelationships(ctx, planID, created.ID, nil, []string{created.ID})
	assert.ErrorIs(t, err, ErrSelfReference)
}

func TestBlock_Link(t *testing.T) {
	t.Parallel()

	s, plans, planID := newBlockFixture(t)
	ctx := context.Background()

	parent, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeAction))
	require.NoError(t, err)

	child, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeWait))
	require.NoError(t, err)

	// Dropping child onto parent makes parent the child's parent
	require.NoError(t, s.Link(ctx, planID, child.ID, parent.ID))

	plan, err := plans.GetCarePlan(ctx, planID)
	require.NoError(t, err)

	gotParent := plan.BlockByID(parent.ID)
	gotChild := plan.BlockByID(child.ID)
	assert.Contains(t, gotParent.ChildIDs, child.ID)
	assert.Contains(t, gotChild.ParentIDs, parent.ID)

	err = s.Link(ctx, planID, child.ID, child.ID)
	assert.ErrorIs(t, err, ErrSelfReference)

	err = s.Link(ctx, planID, "ghost", parent.ID)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestBlock_Outline(t *testing.T) {
	t.Parallel()

	s, _, planID := newBlockFixture(t)
	ctx := context.Background()

	root, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeAction))
	require.NoError(t, err)

	leaf, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeWait))
	require.NoError(t, err)

	require.NoError(t, s.Link(ctx, planID, leaf.ID, root.ID))

	outline, err := s.Outline(ctx, planID)
	require.NoError(t, err)
	require.Len(t, outline, 2)
	assert.Equal(t, root.ID, outline[0].Block.ID)
	assert.Equal(t, 0, outline[0].Depth)
	assert.Equal(t, leaf.ID, outline[1].Block.ID)
	assert.Equal(t, 1, outline[1].Depth)
}

func TestBlock_Delete(t *testing.T) {
	t.Parallel()

	s, plans, planID := newBlockFixture(t)
	ctx := context.Background()

	parent, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeAction))
	require.NoError(t, err)

	child, err := s.CreateBlock(ctx, planID, draftBlock(t, models.BlockTypeWait))
	require.NoError(t, err)

	require.NoError(t, s.Link(ctx, planID, child.ID, parent.ID))
	require.NoError(t, s.DeleteBlock(ctx, planID, child.ID))

	plan, err := plans.GetCarePlan(ctx, planID)
	require.NoError(t, err)
	require.Len(t, plan.Blocks, 1)
	assert.Empty(t, plan.Blocks[0].ChildIDs)

	err = s.DeleteBlock(ctx, planID, child.ID)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}
