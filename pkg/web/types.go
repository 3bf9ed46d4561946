// Package web provides HTTP request and response types for the care plan API.
package web

import (
	"encoding/json"
	"fmt"

	"github.com/opencare/careplan/pkg/models"
)

// CreateCarePlanRequest represents the request body for creating a new care plan.
type CreateCarePlanRequest struct {
	Title     string `json:"title"      validate:"required,min=3"`
	PatientID string `json:"patient_id" validate:"required"`
	EpisodeID string `json:"episode_id"`
	Owner     string `json:"owner"`
}

// UpdateCarePlanRequest represents the request body for updating a care plan.
// All fields are optional to support partial updates.
type UpdateCarePlanRequest struct {
	Title     *string `json:"title,omitempty"      validate:"omitempty,min=3"`
	EpisodeID *string `json:"episode_id,omitempty"`
}

// BlockRequest represents the request body for creating a block or replacing
// its payload. The payload document is validated against the per-type JSON
// schema before it is interpreted.
type BlockRequest struct {
	Type    string          `json:"type"    validate:"required,oneof=ACTION CONDITION WAIT"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// ToBlock builds a typed block from the request, keeping the given id and
// leaving relationships empty.
func (r *BlockRequest) ToBlock(id string) (*models.Block, error) {
	blockType := models.BlockType(r.Type)

	if err := models.ValidatePayloadJSON(blockType, r.Payload); err != nil {
		return nil, err
	}

	block := &models.Block{
		ID:        id,
		Type:      blockType,
		ParentIDs: []string{},
		ChildIDs:  []string{},
	}

	switch blockType {
	case models.BlockTypeAction:
		block.Action = &models.ActionPayload{}

		if err := json.Unmarshal(r.Payload, block.Action); err != nil {
			return nil, fmt.Errorf("failed to decode action payload: %w", err)
		}
	case models.BlockTypeCondition:
		block.Condition = &models.ConditionPayload{}

		if err := json.Unmarshal(r.Payload, block.Condition); err != nil {
			return nil, fmt.Errorf("failed to decode condition payload: %w", err)
		}
	case models.BlockTypeWait:
		block.Wait = &models.WaitPayload{}

		if err := json.Unmarshal(r.Payload, block.Wait); err != nil {
			return nil, fmt.Errorf("failed to decode wait payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownBlockType, blockType)
	}

	return block, nil
}

// UpdateRelationshipsRequest replaces both edge sets of a block in full.
type UpdateRelationshipsRequest struct {
	ParentIDs []string `json:"parent_block_ids"`
	ChildIDs  []string `json:"child_block_ids"`
}

// LinkBlocksRequest mirrors the drag-and-drop gesture: the dragged block is
// dropped onto the target, making the target its parent.
type LinkBlocksRequest struct {
	DraggedBlockID string `json:"dragged_block_id" validate:"required"`
	TargetBlockID  string `json:"target_block_id"  validate:"required"`
}

// ToggleTaskRequest identifies the task to flip on the current ACTION block.
type ToggleTaskRequest struct {
	TaskID string `json:"task_id" validate:"required"`
}

// ChooseOptionRequest identifies the selected option of the current
// CONDITION block.
type ChooseOptionRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}
