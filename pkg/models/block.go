// Package models defines the core domain models for care-plan block graphs.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// BlockType identifies the kind of care-procedure step a block represents.
// The set is closed: persisted blocks never change type.
type BlockType string

const (
	BlockTypeAction    BlockType = "ACTION"    // Checklist of tasks
	BlockTypeCondition BlockType = "CONDITION" // Observation with at least two outcome options
	BlockTypeWait      BlockType = "WAIT"      // Timed pause, duration in minutes
)

// TemporaryIDPrefix marks client-generated ids. A block carrying such an id
// has never been persisted; saving it creates rather than updates.
const TemporaryIDPrefix = "tmp-"

// Block is one step of a care procedure. Exactly one of Action, Condition
// or Wait is set, matching Type.
type Block struct {
	ID        string   `json:"id"         validate:"required"`
	Type      BlockType `json:"type"      validate:"required,oneof=ACTION CONDITION WAIT"`
	ParentIDs []string `json:"parent_block_ids"`
	ChildIDs  []string `json:"child_block_ids"`

	Action    *ActionPayload    `json:"-"`
	Condition *ConditionPayload `json:"-"`
	Wait      *WaitPayload      `json:"-"`
}

// ActionPayload is the checklist carried by an ACTION block.
type ActionPayload struct {
	Tasks []*Task `json:"tasks"`
}

// ConditionPayload is the observation carried by a CONDITION block.
type ConditionPayload struct {
	Condition string    `json:"condition"`
	Options   []*Option `json:"options" validate:"min=2"`
}

// WaitPayload is the timed pause carried by a WAIT block.
type WaitPayload struct {
	DurationMinutes int `json:"duration" validate:"min=0"`
}

// MinConditionOptions is the floor below which options may not be deleted.
const MinConditionOptions = 2

var (
	ErrUnknownBlockType = errors.New("unknown block type")
	ErrPayloadMismatch  = errors.New("payload does not match block type")
	ErrOptionFloor      = errors.New("condition block requires at least 2 options")
)

// NewBlockID returns a server-assigned block identifier.
func NewBlockID() string {
	return uuid.New().String()
}

// NewTemporaryBlockID returns a client-side draft identifier. Saving a block
// with such an id POST-creates it instead of PATCH-updating.
func NewTemporaryBlockID() string {
	return TemporaryIDPrefix + uuid.New().String()
}

// IsTemporaryID reports whether id was generated client-side and never
// assigned by the backend.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TemporaryIDPrefix)
}

// NewBlock creates an empty block of the given type with the default payload
// for that type: ACTION starts with no tasks, CONDITION with a blank
// condition and exactly two blank options, WAIT with a zero duration.
func NewBlock(id string, blockType BlockType) (*Block, error) {
	block := &Block{
		ID:        id,
		Type:      blockType,
		ParentIDs: []string{},
		ChildIDs:  []string{},
	}

	switch blockType {
	case BlockTypeAction:
		block.Action = &ActionPayload{Tasks: []*Task{}}
	case BlockTypeCondition:
		block.Condition = &ConditionPayload{
			Options: []*Option{NewOption(), NewOption()},
		}
	case BlockTypeWait:
		block.Wait = &WaitPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, blockType)
	}

	return block, nil
}

// Validate checks type/payload agreement and the per-type payload invariants.
func (b *Block) Validate() error {
	if b.ID == "" {
		return errors.New("block id is required")
	}

	switch b.Type {
	case BlockTypeAction:
		if b.Action == nil || b.Condition != nil || b.Wait != nil {
			return fmt.Errorf("%w: %s", ErrPayloadMismatch, b.Type)
		}
	case BlockTypeCondition:
		if b.Condition == nil || b.Action != nil || b.Wait != nil {
			return fmt.Errorf("%w: %s", ErrPayloadMismatch, b.Type)
		}

		if len(b.Condition.Options) < MinConditionOptions {
			return ErrOptionFloor
		}
	case BlockTypeWait:
		if b.Wait == nil || b.Action != nil || b.Condition != nil {
			return fmt.Errorf("%w: %s", ErrPayloadMismatch, b.Type)
		}

		if b.Wait.DurationMinutes < 0 {
			return errors.New("wait duration must be non-negative")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBlockType, b.Type)
	}

	return nil
}

// HasParent reports whether parentID is already listed on the block.
func (b *Block) HasParent(parentID string) bool {
	for _, id := range b.ParentIDs {
		if id == parentID {
			return true
		}
	}

	return false
}

// HasChild reports whether childID is already listed on the block.
func (b *Block) HasChild(childID string) bool {
	for _, id := range b.ChildIDs {
		if id == childID {
			return true
		}
	}

	return false
}

// AddParent appends parentID with set semantics: re-adding is a no-op.
func (b *Block) AddParent(parentID string) {
	if !b.HasParent(parentID) {
		b.ParentIDs = append(b.ParentIDs, parentID)
	}
}

// AddChild appends childID with set semantics: re-adding is a no-op.
func (b *Block) AddChild(childID string) {
	if !b.HasChild(childID) {
		b.ChildIDs = append(b.ChildIDs, childID)
	}
}

// blockJSON is the wire shape of a block. The payload fields are all
// optional on the wire; Type selects which one is read back.
type blockJSON struct {
	ID        string          `json:"id"`
	Type      BlockType       `json:"type"`
	ParentIDs []string        `json:"parent_block_ids"`
	ChildIDs  []string        `json:"child_block_ids"`
	Tasks     []*Task         `json:"tasks,omitempty"`
	Condition *string         `json:"condition,omitempty"`
	Options   []*Option       `json:"options,omitempty"`
	Duration  *int            `json:"duration,omitempty"`
}

// MarshalJSON serializes the payload per type, keeping fields of the other
// types off the wire entirely.
func (b *Block) MarshalJSON() ([]byte, error) {
	out := blockJSON{
		ID:        b.ID,
		Type:      b.Type,
		ParentIDs: b.ParentIDs,
		ChildIDs:  b.ChildIDs,
	}

	if out.ParentIDs == nil {
		out.ParentIDs = []string{}
	}

	if out.ChildIDs == nil {
		out.ChildIDs = []string{}
	}

	switch b.Type {
	case BlockTypeAction:
		if b.Action == nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadMismatch, b.Type)
		}

		out.Tasks = b.Action.Tasks
		if out.Tasks == nil {
			out.Tasks = []*Task{}
		}
	case BlockTypeCondition:
		if b.Condition == nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadMismatch, b.Type)
		}

		out.Condition = &b.Condition.Condition
		out.Options = b.Condition.Options
	case BlockTypeWait:
		if b.Wait == nil {
			return nil, fmt.Errorf("%w: %s", ErrPayloadMismatch, b.Type)
		}

		out.Duration = &b.Wait.DurationMinutes
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, b.Type)
	}

	return json.Marshal(out)
}

// UnmarshalJSON parses the payload according to the wire type tag.
func (b *Block) UnmarshalJSON(data []byte) error {
	var in blockJSON

	err := json.Unmarshal(data, &in)
	if err != nil {
		return err
	}

	b.ID = in.ID
	b.Type = in.Type
	b.ParentIDs = in.ParentIDs
	b.ChildIDs = in.ChildIDs
	b.Action = nil
	b.Condition = nil
	b.Wait = nil

	if b.ParentIDs == nil {
		b.ParentIDs = []string{}
	}

	if b.ChildIDs == nil {
		b.ChildIDs = []string{}
	}

	switch in.Type {
	case BlockTypeAction:
		tasks := in.Tasks
		if tasks == nil {
			tasks = []*Task{}
		}

		b.Action = &ActionPayload{Tasks: tasks}
	case BlockTypeCondition:
		payload := &ConditionPayload{Options: in.Options}
		if in.Condition != nil {
			payload.Condition = *in.Condition
		}

		if payload.Options == nil {
			payload.Options = []*Option{}
		}

		b.Condition = payload
	case BlockTypeWait:
		payload := &WaitPayload{}
		if in.Duration != nil {
			payload.DurationMinutes = *in.Duration
		}

		b.Wait = payload
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBlockType, in.Type)
	}

	return nil
}
