package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
)

// CarePlanRepository handles care-plan-related database operations.
type CarePlanRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCarePlanRepository creates a new care plan repository.
func NewCarePlanRepository(db *sql.DB, logger *slog.Logger) *CarePlanRepository {
	return &CarePlanRepository{db: db, logger: logger}
}

// GetAll returns all care plans from the database.
func (r *CarePlanRepository) GetAll(ctx context.Context) ([]*models.CarePlan, error) {
	query := `
		SELECT
			id
		  , title
		  , patient_id
		  , episode_id
		  , owner
		  , created_at
		  , updated_at
		  , deleted_at
		FROM care_plans
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query care plans: %w", err)
	}

	defer func(ctx context.Context, r *CarePlanRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	plans := make([]*models.CarePlan, 0)

	for rows.Next() {
		plan, err := r.scanPlanBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan care plan: %w", err)
		}

		err = r.loadBlocks(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("failed to load care plan blocks: %w", err)
		}

		plans = append(plans, plan)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating care plans: %w", err)
	}

	return plans, nil
}

// GetByID returns a care plan by its ID.
func (r *CarePlanRepository) GetByID(ctx context.Context, id string) (*models.CarePlan, error) {
	query := `
		SELECT
			id
		  , title
		  , patient_id
		  , episode_id
		  , owner
		  , created_at
		  , updated_at
		  , deleted_at
		FROM care_plans
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	plan, err := r.scanPlanBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewPlanError("GetByID", id, persistence.ErrCarePlanNotFound)
		}

		return nil, fmt.Errorf("failed to scan care plan: %w", err)
	}

	if err := r.loadBlocks(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to load care plan blocks: %w", err)
	}

	return plan, nil
}

// Save saves a care plan and its full block collection to the database.
func (r *CarePlanRepository) Save(ctx context.Context, plan *models.CarePlan) error {
	now := time.Now().UTC()

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}

	plan.UpdatedAt = now

	if plan.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate care plan ID: %w", err)
		}

		plan.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	planQuery := `
		INSERT INTO care_plans (id, title, patient_id, episode_id, owner, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			patient_id = EXCLUDED.patient_id,
			episode_id = EXCLUDED.episode_id,
			owner = EXCLUDED.owner,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = tx.ExecContext(ctx, planQuery,
		plan.ID,
		plan.Title,
		plan.PatientID,
		plan.EpisodeID,
		plan.Owner,
		plan.CreatedAt,
		plan.UpdatedAt,
		plan.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save care plan base: %w", err)
	}

	// Replace the block collection wholesale (for updates)
	_, err = tx.ExecContext(ctx, "DELETE FROM care_plan_blocks WHERE care_plan_id = $1", plan.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing blocks: %w", err)
	}

	if err := r.saveBlocks(ctx, tx, plan); err != nil {
		return fmt.Errorf("failed to save care plan blocks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a care plan by setting deleted_at timestamp.
func (r *CarePlanRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE care_plans SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete care plan: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewPlanError("Delete", id, persistence.ErrCarePlanNotFound)
	}

	return nil
}

func (r *CarePlanRepository) loadBlocks(ctx context.Context, plan *models.CarePlan) error {
	query := `
		SELECT id, block_type, payload, parent_ids, child_ids
		FROM care_plan_blocks
		WHERE care_plan_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, plan.ID)
	if err != nil {
		return fmt.Errorf("failed to query care plan blocks: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	blocks := make([]*models.Block, 0)

	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return fmt.Errorf("failed to scan block: %w", err)
		}

		blocks = append(blocks, block)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating blocks: %w", err)
	}

	plan.Blocks = blocks

	return nil
}

// saveBlocks inserts the plan's blocks, preserving collection order.
func (r *CarePlanRepository) saveBlocks(ctx context.Context, tx *sql.Tx, plan *models.CarePlan) error {
	query := `
		INSERT INTO care_plan_blocks (care_plan_id, id, block_type, payload, parent_ids, child_ids, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for position, block := range plan.Blocks {
		payloadJSON, parentsJSON, childrenJSON, err := marshalBlockColumns(block)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query,
			plan.ID,
			block.ID,
			block.Type,
			payloadJSON,
			parentsJSON,
			childrenJSON,
			position,
		)
		if err != nil {
			return fmt.Errorf("failed to save block %s: %w", block.ID, err)
		}
	}

	return nil
}

func (r *CarePlanRepository) scanPlanBase(scanner interface {
	Scan(dest ...any) error
}) (*models.CarePlan, error) {
	var plan models.CarePlan

	err := scanner.Scan(
		&plan.ID,
		&plan.Title,
		&plan.PatientID,
		&plan.EpisodeID,
		&plan.Owner,
		&plan.CreatedAt,
		&plan.UpdatedAt,
		&plan.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &plan, nil
}
