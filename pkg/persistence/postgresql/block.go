package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// BlockRepository handles block-level database operations. Unlike Save on
// the plan repository, these touch individual rows so concurrent editors
// do not overwrite each other's blocks.
type BlockRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewBlockRepository creates a new block repository.
func NewBlockRepository(db *sql.DB, logger *slog.Logger) *BlockRepository {
	return &BlockRepository{db: db, logger: logger}
}

// Create appends a block at the end of the plan's collection.
func (r *BlockRepository) Create(ctx context.Context, planID string, block *models.Block) error {
	payloadJSON, parentsJSON, childrenJSON, err := marshalBlockColumns(block)
	if err != nil {
		return persistence.NewBlockError("Create", planID, block.ID, err)
	}

	query := `
		INSERT INTO care_plan_blocks (care_plan_id, id, block_type, payload, parent_ids, child_ids, position)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(position) + 1, 0) FROM care_plan_blocks WHERE care_plan_id = $1))
	`

	_, err = r.db.ExecContext(ctx, query,
		planID,
		block.ID,
		block.Type,
		payloadJSON,
		parentsJSON,
		childrenJSON,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return persistence.NewBlockError("Create", planID, block.ID, persistence.ErrBlockAlreadyExists)
			case pqForeignKeyViolation:
				return persistence.NewPlanError("Create", planID, persistence.ErrCarePlanNotFound)
			}
		}

		return persistence.NewBlockError("Create", planID, block.ID, err)
	}

	return nil
}

// UpdatePayload replaces the block's typed payload, leaving its
// relationships untouched. The block's type is fixed at creation; an
// update carrying a different type is rejected.
func (r *BlockRepository) UpdatePayload(ctx context.Context, planID string, block *models.Block) error {
	payloadJSON, _, _, err := marshalBlockColumns(block)
	if err != nil {
		return persistence.NewBlockError("UpdatePayload", planID, block.ID, err)
	}

	query := `
		UPDATE care_plan_blocks
		SET payload = $4, updated_at = NOW()
		WHERE care_plan_id = $1 AND id = $2 AND block_type = $3
	`

	result, err := r.db.ExecContext(ctx, query, planID, block.ID, block.Type, payloadJSON)
	if err != nil {
		return persistence.NewBlockError("UpdatePayload", planID, block.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewBlockError("UpdatePayload", planID, block.ID, err)
	}

	if rowsAffected > 0 {
		return nil
	}

	// Zero rows: the plan or block is missing, or the update tried to
	// change the stored type.
	var storedType string

	err = r.db.QueryRowContext(ctx,
		`SELECT block_type FROM care_plan_blocks WHERE care_plan_id = $1 AND id = $2`,
		planID, block.ID).Scan(&storedType)
	if errors.Is(err, sql.ErrNoRows) {
		return r.requireRow(ctx, result, "UpdatePayload", planID, block.ID)
	}

	if err != nil {
		return persistence.NewBlockError("UpdatePayload", planID, block.ID, err)
	}

	return persistence.NewBlockError("UpdatePayload", planID, block.ID, persistence.ErrBlockTypeImmutable)
}

// UpdateRelationships replaces both edge sets of a block in full.
func (r *BlockRepository) UpdateRelationships(ctx context.Context, planID, blockID string, parentIDs, childIDs []string) error {
	parentsJSON, err := marshalIDList(parentIDs)
	if err != nil {
		return persistence.NewBlockError("UpdateRelationships", planID, blockID, err)
	}

	childrenJSON, err := marshalIDList(childIDs)
	if err != nil {
		return persistence.NewBlockError("UpdateRelationships", planID, blockID, err)
	}

	query := `
		UPDATE care_plan_blocks
		SET parent_ids = $3, child_ids = $4, updated_at = NOW()
		WHERE care_plan_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query, planID, blockID, parentsJSON, childrenJSON)
	if err != nil {
		return persistence.NewBlockError("UpdateRelationships", planID, blockID, err)
	}

	return r.requireRow(ctx, result, "UpdateRelationships", planID, blockID)
}

// Delete removes the block and strips its id from every other block's edge
// sets, in one transaction.
func (r *BlockRepository) Delete(ctx context.Context, planID, blockID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewBlockError("Delete", planID, blockID, err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM care_plan_blocks WHERE care_plan_id = $1 AND id = $2`, planID, blockID)
	if err != nil {
		return persistence.NewBlockError("Delete", planID, blockID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewBlockError("Delete", planID, blockID, err)
	}

	if rowsAffected == 0 {
		err = persistence.NewBlockError("Delete", planID, blockID, persistence.ErrBlockNotFound)

		return err
	}

	// The jsonb "- text" operator removes the id from the edge arrays.
	_, err = tx.ExecContext(ctx, `
		UPDATE care_plan_blocks
		SET parent_ids = parent_ids - $2::text,
		    child_ids = child_ids - $2::text,
		    updated_at = NOW()
		WHERE care_plan_id = $1 AND (parent_ids ? $2 OR child_ids ? $2)
	`, planID, blockID)
	if err != nil {
		return persistence.NewBlockError("Delete", planID, blockID, err)
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewBlockError("Delete", planID, blockID, err)
	}

	return nil
}

// requireRow maps a zero-row update to the right not-found error: the plan's
// absence takes precedence over the block's.
func (r *BlockRepository) requireRow(ctx context.Context, result sql.Result, op, planID, blockID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewBlockError(op, planID, blockID, err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM care_plans WHERE id = $1 AND deleted_at IS NULL)`, planID).Scan(&exists)
	if err != nil {
		return persistence.NewBlockError(op, planID, blockID, err)
	}

	if !exists {
		return persistence.NewPlanError(op, planID, persistence.ErrCarePlanNotFound)
	}

	return persistence.NewBlockError(op, planID, blockID, persistence.ErrBlockNotFound)
}

// marshalBlockColumns serializes the block's typed payload and edge sets
// for storage.
func marshalBlockColumns(block *models.Block) (payload, parents, children []byte, err error) {
	switch block.Type {
	case models.BlockTypeAction:
		payload, err = json.Marshal(block.Action)
	case models.BlockTypeCondition:
		payload, err = json.Marshal(block.Condition)
	case models.BlockTypeWait:
		payload, err = json.Marshal(block.Wait)
	default:
		return nil, nil, nil, fmt.Errorf("%w: %s", models.ErrUnknownBlockType, block.Type)
	}

	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal block payload: %w", err)
	}

	parents, err = marshalIDList(block.ParentIDs)
	if err != nil {
		return nil, nil, nil, err
	}

	children, err = marshalIDList(block.ChildIDs)
	if err != nil {
		return nil, nil, nil, err
	}

	return payload, parents, children, nil
}

func marshalIDList(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal id list: %w", err)
	}

	return data, nil
}

func scanBlock(scanner interface {
	Scan(dest ...any) error
}) (*models.Block, error) {
	var (
		block                                  models.Block
		payloadJSON, parentsJSON, childrenJSON []byte
	)

	err := scanner.Scan(
		&block.ID,
		&block.Type,
		&payloadJSON,
		&parentsJSON,
		&childrenJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(parentsJSON, &block.ParentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parent ids: %w", err)
	}

	if err := json.Unmarshal(childrenJSON, &block.ChildIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal child ids: %w", err)
	}

	switch block.Type {
	case models.BlockTypeAction:
		block.Action = &models.ActionPayload{}
		err = json.Unmarshal(payloadJSON, block.Action)
	case models.BlockTypeCondition:
		block.Condition = &models.ConditionPayload{}
		err = json.Unmarshal(payloadJSON, block.Condition)
	case models.BlockTypeWait:
		block.Wait = &models.WaitPayload{}
		err = json.Unmarshal(payloadJSON, block.Wait)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownBlockType, block.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal block payload: %w", err)
	}

	return &block, nil
}
