// Package postgresql provides PostgreSQL persistence implementation for care
// plans and their blocks.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	carePlanRepo *CarePlanRepository
	blockRepo    *BlockRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:           database,
		logger:       logger,
		carePlanRepo: NewCarePlanRepository(database, logger),
		blockRepo:    NewBlockRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// CarePlans returns all care plans from the database.
func (p *Persistence) CarePlans(ctx context.Context) ([]*models.CarePlan, error) {
	return p.carePlanRepo.GetAll(ctx)
}

// CarePlanByID returns a care plan by its ID.
func (p *Persistence) CarePlanByID(ctx context.Context, id string) (*models.CarePlan, error) {
	return p.carePlanRepo.GetByID(ctx, id)
}

// SaveCarePlan saves a care plan and its full block collection.
func (p *Persistence) SaveCarePlan(ctx context.Context, plan *models.CarePlan) error {
	return p.carePlanRepo.Save(ctx, plan)
}

// DeleteCarePlan soft deletes a care plan by setting deleted_at timestamp.
func (p *Persistence) DeleteCarePlan(ctx context.Context, id string) error {
	return p.carePlanRepo.Delete(ctx, id)
}

// CreateBlock appends a block to the plan's flat collection.
func (p *Persistence) CreateBlock(ctx context.Context, planID string, block *models.Block) error {
	return p.blockRepo.Create(ctx, planID, block)
}

// UpdateBlockPayload replaces the block's typed payload.
func (p *Persistence) UpdateBlockPayload(ctx context.Context, planID string, block *models.Block) error {
	return p.blockRepo.UpdatePayload(ctx, planID, block)
}

// UpdateBlockRelationships replaces both edge sets of a block in full.
func (p *Persistence) UpdateBlockRelationships(ctx context.Context, planID, blockID string, parentIDs, childIDs []string) error {
	return p.blockRepo.UpdateRelationships(ctx, planID, blockID, parentIDs, childIDs)
}

// DeleteBlock removes the block and strips it from every edge set.
func (p *Persistence) DeleteBlock(ctx context.Context, planID, blockID string) error {
	return p.blockRepo.Delete(ctx, planID, blockID)
}
