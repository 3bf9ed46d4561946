package editor_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencare/careplan/pkg/editor"
	"github.com/opencare/careplan/pkg/models"
)

type fakeSaver struct {
	created   []*models.Block
	updated   []*models.Block
	createErr error
	updateErr error
}

func (s *fakeSaver) CreateBlock(_ context.Context, _ string, block *models.Block) (*models.Block, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}

	saved := *block
	saved.ID = models.NewBlockID()
	saved.ParentIDs = []string{}
	saved.ChildIDs = []string{}
	s.created = append(s.created, &saved)

	return &saved, nil
}

func (s *fakeSaver) UpdateBlockPayload(_ context.Context, _ string, block *models.Block) error {
	if s.updateErr != nil {
		return s.updateErr
	}

	s.updated = append(s.updated, block)

	return nil
}

func newTestEditor(saver *fakeSaver) *editor.Editor {
	return editor.New("plan-1", saver, slog.Default())
}

func TestEditor_SelectType_ResetsPayload(t *testing.T) {
	t.Parallel()

	e := newTestEditor(&fakeSaver{})
	require.NoError(t, e.StartDraft(models.BlockTypeAction))

	_, err := e.AddTask()
	require.NoError(t, err)

	require.NoError(t, e.SelectType(models.BlockTypeCondition))

	draft := e.Draft()
	require.NotNil(t, draft.Condition)
	assert.Nil(t, draft.Action, "previous payload discarded")
	assert.Len(t, draft.Condition.Options, 2)

	// Switching back does not resurrect the task.
	require.NoError(t, e.SelectType(models.BlockTypeAction))
	assert.Empty(t, e.Draft().Action.Tasks)
}

func TestEditor_TaskOperations(t *testing.T) {
	t.Parallel()

	e := newTestEditor(&fakeSaver{})
	require.NoError(t, e.StartDraft(models.BlockTypeAction))

	task, err := e.AddTask()
	require.NoError(t, err)

	require.NoError(t, e.UpdateTask(task.ID, "Check vitals"))
	assert.Equal(t, "Check vitals", e.Draft().Action.Tasks[0].Text)

	assert.ErrorIs(t, e.UpdateTask("missing", "x"), editor.ErrTaskNotFound)

	require.NoError(t, e.DeleteTask(task.ID))
	assert.Empty(t, e.Draft().Action.Tasks)

	_, err = e.AddOption()
	assert.ErrorIs(t, err, editor.ErrWrongDraftType)
}

func TestEditor_OptionFloor(t *testing.T) {
	t.Parallel()

	e := newTestEditor(&fakeSaver{})
	require.NoError(t, e.StartDraft(models.BlockTypeCondition))

	options := e.Draft().Condition.Options
	require.Len(t, options, 2)

	// Deleting at the floor is rejected and both options stay unchanged.
	err := e.DeleteOption(options[0].ID)
	assert.ErrorIs(t, err, models.ErrOptionFloor)
	assert.Len(t, e.Draft().Condition.Options, 2)

	third, err := e.AddOption()
	require.NoError(t, err)
	require.NoError(t, e.DeleteOption(third.ID))
	assert.Len(t, e.Draft().Condition.Options, 2)
}

func TestEditor_UpdateOptionFields(t *testing.T) {
	t.Parallel()

	e := newTestEditor(&fakeSaver{})
	require.NoError(t, e.StartDraft(models.BlockTypeCondition))
	require.NoError(t, e.UpdateCondition("fever above 38.5?"))

	option := e.Draft().Condition.Options[0]
	require.NoError(t, e.UpdateOption(option.ID, editor.OptionFieldResultat, "yes"))
	require.NoError(t, e.UpdateOption(option.ID, editor.OptionFieldDecision, "antipyretic"))

	assert.Equal(t, "yes", option.Resultat)
	assert.Equal(t, "antipyretic", option.Decision)

	assert.Error(t, e.UpdateOption(option.ID, editor.OptionField("colour"), "x"))
	assert.ErrorIs(t, e.UpdateOption("missing", editor.OptionFieldResultat, "x"), editor.ErrOptionNotFound)
}

func TestEditor_Save_CreateRestartsSameType(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	e := newTestEditor(saver)
	require.NoError(t, e.StartDraft(models.BlockTypeWait))
	require.NoError(t, e.SetDuration(2))

	saved, err := e.Save(context.Background())
	require.NoError(t, err)

	assert.False(t, models.IsTemporaryID(saved.ID))
	assert.Empty(t, saved.ParentIDs)
	assert.Empty(t, saved.ChildIDs)
	require.Len(t, saver.created, 1)

	// Editor restarted with a fresh draft of the same type.
	draft := e.Draft()
	require.NotNil(t, draft)
	assert.Equal(t, models.BlockTypeWait, draft.Type)
	assert.True(t, models.IsTemporaryID(draft.ID))
	assert.Zero(t, draft.Wait.DurationMinutes)
}

func TestEditor_Save_UpdateDropsSelection(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	e := newTestEditor(saver)

	block, err := models.NewBlock(models.NewBlockID(), models.BlockTypeAction)
	require.NoError(t, err)
	require.NoError(t, e.Edit(block))

	_, err = e.AddTask()
	require.NoError(t, err)

	saved, err := e.Save(context.Background())
	require.NoError(t, err)

	assert.Equal(t, block.ID, saved.ID)
	assert.Len(t, saver.updated, 1)
	assert.Empty(t, saver.created)
	assert.Nil(t, e.Draft(), "selection dropped after update")
}

func TestEditor_Save_FailureRetainsDraft(t *testing.T) {
	t.Parallel()

	backendDown := errors.New("backend down")
	saver := &fakeSaver{createErr: backendDown}
	e := newTestEditor(saver)
	require.NoError(t, e.StartDraft(models.BlockTypeWait))
	require.NoError(t, e.SetDuration(5))

	draftBefore := e.Draft()

	_, err := e.Save(context.Background())
	assert.ErrorIs(t, err, backendDown)

	// The draft is untouched so the user loses no input.
	assert.Same(t, draftBefore, e.Draft())
	assert.Equal(t, 5, e.Draft().Wait.DurationMinutes)
}

type reentrantSaver struct {
	fakeSaver

	editor *editor.Editor
	inner  error
}

func (s *reentrantSaver) CreateBlock(ctx context.Context, planID string, block *models.Block) (*models.Block, error) {
	// Simulates a second save click while the first request is in flight.
	_, s.inner = s.editor.Save(ctx)

	return s.fakeSaver.CreateBlock(ctx, planID, block)
}

func TestEditor_Save_NonReentrant(t *testing.T) {
	t.Parallel()

	saver := &reentrantSaver{}
	e := editor.New("plan-1", saver, slog.Default())
	saver.editor = e
	require.NoError(t, e.StartDraft(models.BlockTypeAction))

	_, err := e.Save(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, saver.inner, editor.ErrSaveInFlight)
}

func TestEditor_Save_InvalidDraftRejectedLocally(t *testing.T) {
	t.Parallel()

	saver := &fakeSaver{}
	e := newTestEditor(saver)
	require.NoError(t, e.StartDraft(models.BlockTypeCondition))

	e.Draft().Condition.Options = e.Draft().Condition.Options[:1]

	_, err := e.Save(context.Background())
	assert.ErrorIs(t, err, models.ErrOptionFloor)
	assert.Empty(t, saver.created, "no network call on local validation failure")
}
