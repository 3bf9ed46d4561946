package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opencare/careplan/pkg/eventbus"
	"github.com/opencare/careplan/pkg/events"
	"github.com/opencare/careplan/pkg/graph"
	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
)

// ErrBlockNotFound is returned when a block is not found within a plan.
var ErrBlockNotFound = persistence.ErrBlockNotFound

// Block handles block-level business operations. It satisfies editor.Saver,
// so drafts built in the editor land here on save.
type Block struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
}

// NewBlock creates a new block service.
func NewBlock(p persistence.Persistence, eventBus eventbus.EventPublisher, logger *slog.Logger) *Block {
	return &Block{
		persistence: p,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// CreateBlock persists a new block in the plan's flat collection. Temporary
// draft ids are replaced with a server-assigned one.
func (s *Block) CreateBlock(ctx context.Context, planID string, block *models.Block) (*models.Block, error) {
	if block.ID == "" || models.IsTemporaryID(block.ID) {
		block.ID = models.NewBlockID()
	}

	if err := block.Validate(); err != nil {
		return nil, s.classifyBlockErr(err)
	}

	if err := s.persistence.CreateBlock(ctx, planID, block); err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return nil, ErrCarePlanNotFound
		}

		return nil, fmt.Errorf("failed to create block: %w", err)
	}

	s.publish(ctx, planID, events.BlockCreated{
		BaseEvent: events.NewBaseEvent(events.BlockCreatedEvent, planID),
		BlockID:   block.ID,
		BlockType: string(block.Type),
	})

	return block, nil
}

// UpdateBlockPayload replaces the block's typed payload, leaving its
// relationships untouched.
func (s *Block) UpdateBlockPayload(ctx context.Context, planID string, block *models.Block) error {
	if err := block.Validate(); err != nil {
		return s.classifyBlockErr(err)
	}

	if err := s.persistence.UpdateBlockPayload(ctx, planID, block); err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return ErrCarePlanNotFound
		}

		if persistence.IsBlockNotFound(err) {
			return ErrBlockNotFound
		}

		if persistence.IsBlockTypeImmutable(err) {
			return ErrBlockTypeImmutable
		}

		return fmt.Errorf("failed to update block payload: %w", err)
	}

	s.publish(ctx, planID, events.BlockUpdated{
		BaseEvent: events.NewBaseEvent(events.BlockUpdatedEvent, planID),
		BlockID:   block.ID,
		BlockType: string(block.Type),
	})

	return nil
}

// UpdateBlockRelationships replaces both edge sets of a block in full.
func (s *Block) UpdateBlockRelationships(ctx context.Context, planID, blockID string, parentIDs, childIDs []string) error {
	for _, id := range parentIDs {
		if id == blockID {
			return ErrSelfReference
		}
	}

	for _, id := range childIDs {
		if id == blockID {
			return ErrSelfReference
		}
	}

	if err := s.persistence.UpdateBlockRelationships(ctx, planID, blockID, parentIDs, childIDs); err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return ErrCarePlanNotFound
		}

		if persistence.IsBlockNotFound(err) {
			return ErrBlockNotFound
		}

		return fmt.Errorf("failed to update block relationships: %w", err)
	}

	s.publish(ctx, planID, events.BlockUpdated{
		BaseEvent: events.NewBaseEvent(events.BlockUpdatedEvent, planID),
		BlockID:   blockID,
	})

	return nil
}

// DeleteBlock removes a block and strips it from every other block's edges.
func (s *Block) DeleteBlock(ctx context.Context, planID, blockID string) error {
	if err := s.persistence.DeleteBlock(ctx, planID, blockID); err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return ErrCarePlanNotFound
		}

		if persistence.IsBlockNotFound(err) {
			return ErrBlockNotFound
		}

		return fmt.Errorf("failed to delete block: %w", err)
	}

	s.publish(ctx, planID, events.BlockDeleted{
		BaseEvent: events.NewBaseEvent(events.BlockDeletedEvent, planID),
		BlockID:   blockID,
	})

	return nil
}

// Link makes the target block a parent of the dragged block, both sides
// persisted. It mirrors the drag-and-drop gesture in a single call.
func (s *Block) Link(ctx context.Context, planID, draggedID, targetID string) error {
	plan, err := s.persistence.CarePlanByID(ctx, planID)
	if err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return ErrCarePlanNotFound
		}

		return fmt.Errorf("failed to get care plan: %w", err)
	}

	index := graph.NewIndex(plan.Blocks)
	linker := graph.NewLinker(planID, index, s.persistence, s.logger)

	if err := linker.BeginDrag(draggedID); err != nil {
		return s.classifyLinkErr(err)
	}

	if err := linker.Drop(ctx, targetID); err != nil {
		return s.classifyLinkErr(err)
	}

	s.publish(ctx, planID, events.BlocksLinked{
		BaseEvent:     events.NewBaseEvent(events.BlocksLinkedEvent, planID),
		ParentBlockID: targetID,
		ChildBlockID:  draggedID,
	})

	return nil
}

// Outline returns the plan's depth-annotated reading order.
func (s *Block) Outline(ctx context.Context, planID string) ([]graph.OutlineEntry, error) {
	plan, err := s.persistence.CarePlanByID(ctx, planID)
	if err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return nil, ErrCarePlanNotFound
		}

		return nil, fmt.Errorf("failed to get care plan: %w", err)
	}

	return graph.Outline(plan.Blocks), nil
}

func (s *Block) classifyBlockErr(err error) error {
	if errors.Is(err, models.ErrUnknownBlockType) {
		return fmt.Errorf("%w: %w", ErrInvalidBlockType, err)
	}

	if errors.Is(err, models.ErrPayloadMismatch) || errors.Is(err, models.ErrOptionFloor) {
		return fmt.Errorf("%w: %w", ErrInvalidBlockPayload, err)
	}

	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

func (s *Block) classifyLinkErr(err error) error {
	if errors.Is(err, graph.ErrSelfEdge) {
		return ErrSelfReference
	}

	if errors.Is(err, graph.ErrUnknownBlock) {
		return ErrBlockNotFound
	}

	return fmt.Errorf("failed to link blocks: %w", err)
}

func (s *Block) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
