package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
	"github.com/opencare/careplan/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"care_plan_blocks", "care_plans", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("careplan_test"),
			postgres.WithUsername("careplan"),
			postgres.WithPassword("careplan"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func mustBlock(t *testing.T, blockType models.BlockType) *models.Block {
	t.Helper()

	block, err := models.NewBlock(models.NewBlockID(), blockType)
	require.NoError(t, err)

	return block
}

func testPlan(title string) *models.CarePlan {
	return &models.CarePlan{
		Title:     title,
		PatientID: "patient-42",
		EpisodeID: "episode-7",
		Owner:     "dr-test",
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'care_plans')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "care_plans table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'care_plan_blocks')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "care_plan_blocks table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestNewPersistence_SaveAndRetrieveCarePlan(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	action := mustBlock(t, models.BlockTypeAction)
	task := models.NewTask()
	task.Text = "Check vitals"
	action.Action.Tasks = append(action.Action.Tasks, task)

	condition := mustBlock(t, models.BlockTypeCondition)
	condition.Condition.Condition = "Fever above 38.5"
	condition.Condition.Options[0].Resultat = "yes"
	condition.Condition.Options[0].Decision = "administer antipyretic"
	condition.Condition.Options[1].Resultat = "no"
	condition.Condition.Options[1].Decision = "continue monitoring"

	wait := mustBlock(t, models.BlockTypeWait)
	wait.Wait.DurationMinutes = 30

	action.AddChild(condition.ID)
	condition.AddParent(action.ID)

	plan := testPlan("Sepsis protocol")
	plan.Blocks = []*models.Block{action, condition, wait}

	err := p.SaveCarePlan(ctx, plan)
	require.NoError(t, err)
	assert.NotEmpty(t, plan.ID)
	assert.False(t, plan.CreatedAt.IsZero())
	assert.False(t, plan.UpdatedAt.IsZero())

	retrieved, err := p.CarePlanByID(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved)

	assert.Equal(t, plan.Title, retrieved.Title)
	assert.Equal(t, plan.PatientID, retrieved.PatientID)
	assert.Equal(t, plan.EpisodeID, retrieved.EpisodeID)
	assert.Equal(t, plan.Owner, retrieved.Owner)
	require.Len(t, retrieved.Blocks, 3)

	// Collection order survives the round trip
	assert.Equal(t, action.ID, retrieved.Blocks[0].ID)
	assert.Equal(t, condition.ID, retrieved.Blocks[1].ID)
	assert.Equal(t, wait.ID, retrieved.Blocks[2].ID)

	got := retrieved.BlockByID(condition.ID)
	require.NotNil(t, got)
	require.NotNil(t, got.Condition)
	assert.Equal(t, "Fever above 38.5", got.Condition.Condition)
	require.Len(t, got.Condition.Options, 2)
	assert.Equal(t, "administer antipyretic", got.Condition.Options[0].Decision)
	assert.Equal(t, []string{action.ID}, got.ParentIDs)

	gotWait := retrieved.BlockByID(wait.ID)
	require.NotNil(t, gotWait)
	require.NotNil(t, gotWait.Wait)
	assert.Equal(t, 30, gotWait.Wait.DurationMinutes)

	_, err = p.CarePlanByID(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, persistence.ErrCarePlanNotFound)
}

func TestNewPersistence_ListCarePlans(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	first := testPlan("Plan A")
	second := testPlan("Plan B")

	require.NoError(t, p.SaveCarePlan(ctx, first))
	require.NoError(t, p.SaveCarePlan(ctx, second))

	plans, err := p.CarePlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestNewPersistence_DeleteCarePlan(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	plan := testPlan("Plan to delete")
	require.NoError(t, p.SaveCarePlan(ctx, plan))

	err := p.DeleteCarePlan(ctx, plan.ID)
	require.NoError(t, err)

	_, err = p.CarePlanByID(ctx, plan.ID)
	assert.ErrorIs(t, err, persistence.ErrCarePlanNotFound)

	err = p.DeleteCarePlan(ctx, plan.ID)
	assert.ErrorIs(t, err, persistence.ErrCarePlanNotFound)
}

func TestNewPersistence_BlockLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	plan := testPlan("Block lifecycle")
	require.NoError(t, p.SaveCarePlan(ctx, plan))

	first := mustBlock(t, models.BlockTypeAction)
	task := models.NewTask()
	task.Text = "Insert IV line"
	first.Action.Tasks = append(first.Action.Tasks, task)

	second := mustBlock(t, models.BlockTypeWait)
	second.Wait.DurationMinutes = 15

	require.NoError(t, p.CreateBlock(ctx, plan.ID, first))
	require.NoError(t, p.CreateBlock(ctx, plan.ID, second))

	err := p.CreateBlock(ctx, plan.ID, first)
	assert.ErrorIs(t, err, persistence.ErrBlockAlreadyExists)

	err = p.CreateBlock(ctx, "00000000-0000-0000-0000-000000000000", mustBlock(t, models.BlockTypeAction))
	assert.ErrorIs(t, err, persistence.ErrCarePlanNotFound)

	// Link first -> second, then change first's payload; the edge survives
	require.NoError(t, p.UpdateBlockRelationships(ctx, plan.ID, first.ID, nil, []string{second.ID}))
	require.NoError(t, p.UpdateBlockRelationships(ctx, plan.ID, second.ID, []string{first.ID}, nil))

	first.Action.Tasks[0].Text = "Insert IV line (18G)"
	require.NoError(t, p.UpdateBlockPayload(ctx, plan.ID, first))

	retrieved, err := p.CarePlanByID(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, retrieved.Blocks, 2)

	gotFirst := retrieved.BlockByID(first.ID)
	require.NotNil(t, gotFirst)
	assert.Equal(t, "Insert IV line (18G)", gotFirst.Action.Tasks[0].Text)
	assert.Equal(t, []string{second.ID}, gotFirst.ChildIDs)

	gotSecond := retrieved.BlockByID(second.ID)
	require.NotNil(t, gotSecond)
	assert.Equal(t, []string{first.ID}, gotSecond.ParentIDs)

	// A payload update cannot change the stored block type
	retyped := mustBlock(t, models.BlockTypeWait)
	retyped.ID = first.ID
	retyped.Wait.DurationMinutes = 5

	err = p.UpdateBlockPayload(ctx, plan.ID, retyped)
	assert.ErrorIs(t, err, persistence.ErrBlockTypeImmutable)

	// Deleting second strips it from first's edge sets
	require.NoError(t, p.DeleteBlock(ctx, plan.ID, second.ID))

	retrieved, err = p.CarePlanByID(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, retrieved.Blocks, 1)
	assert.Empty(t, retrieved.Blocks[0].ChildIDs)

	err = p.DeleteBlock(ctx, plan.ID, second.ID)
	assert.ErrorIs(t, err, persistence.ErrBlockNotFound)

	err = p.UpdateBlockPayload(ctx, plan.ID, second)
	assert.ErrorIs(t, err, persistence.ErrBlockNotFound)
}

func TestNewPersistence_UpdateCarePlanReplacesBlocks(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	plan := testPlan("Replacing blocks")
	plan.Blocks = []*models.Block{mustBlock(t, models.BlockTypeAction)}
	require.NoError(t, p.SaveCarePlan(ctx, plan))

	initialUpdatedAt := plan.UpdatedAt

	time.Sleep(10 * time.Millisecond)

	plan.Title = "Replaced blocks"
	plan.Blocks = []*models.Block{mustBlock(t, models.BlockTypeWait)}
	require.NoError(t, p.SaveCarePlan(ctx, plan))

	retrieved, err := p.CarePlanByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Replaced blocks", retrieved.Title)
	require.Len(t, retrieved.Blocks, 1)
	assert.Equal(t, models.BlockTypeWait, retrieved.Blocks[0].Type)
	assert.True(t, retrieved.UpdatedAt.After(initialUpdatedAt))
}
