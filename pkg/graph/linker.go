package graph

import (
	"context"
	"errors"
	"log/slog"
)

// RelationshipStore persists the full replacement of one block's edge sets.
type RelationshipStore interface {
	UpdateBlockRelationships(ctx context.Context, planID, blockID string, parentIDs, childIDs []string) error
}

var (
	// ErrNoDragInProgress is returned by Drop before BeginDrag.
	ErrNoDragInProgress = errors.New("no drag in progress")
	// ErrSelfEdge is returned when a block is dropped onto itself.
	ErrSelfEdge = errors.New("block cannot be its own parent")
	// ErrUnknownBlock is returned when either endpoint is not in the plan.
	ErrUnknownBlock = errors.New("block not in care plan")
)

// Linker wires drag-and-drop edges between blocks of one care plan:
// dropping the dragged block onto a target makes the target its parent.
// Edge updates are applied in memory first, then each endpoint is
// persisted as its own request. The two writes are independent and
// non-transactional; a partial failure leaves backend and memory diverged
// and is surfaced, not reconciled.
type Linker struct {
	planID  string
	index   *Index
	store   RelationshipStore
	logger  *slog.Logger
	dragged string
}

// NewLinker creates a linker over an indexed care plan.
func NewLinker(planID string, index *Index, store RelationshipStore, logger *slog.Logger) *Linker {
	return &Linker{
		planID: planID,
		index:  index,
		store:  store,
		logger: logger,
	}
}

// BeginDrag remembers the dragged block.
func (l *Linker) BeginDrag(blockID string) error {
	if l.index.Block(blockID) == nil {
		return ErrUnknownBlock
	}

	l.dragged = blockID

	return nil
}

// Dragging returns the id currently being dragged, if any.
func (l *Linker) Dragging() (string, bool) {
	return l.dragged, l.dragged != ""
}

// Drop links targetID as parent of the dragged block and persists both
// endpoints. Self-drops abort before any write; an already-present edge is
// a no-op rather than an error. Drag state is cleared regardless of
// request outcome.
func (l *Linker) Drop(ctx context.Context, targetID string) error {
	dragged := l.dragged
	l.dragged = ""

	if dragged == "" {
		return ErrNoDragInProgress
	}

	if targetID == dragged {
		return ErrSelfEdge
	}

	parent := l.index.Block(targetID)
	child := l.index.Block(dragged)

	if parent == nil || child == nil {
		return ErrUnknownBlock
	}

	if !l.index.HasEdge(targetID, dragged) {
		l.index.AddEdge(targetID, dragged)
	}

	// Two independent writes, no ordering or atomicity guarantee between
	// them. A half-persisted edge is a known robustness gap.
	var errs []error

	err := l.store.UpdateBlockRelationships(ctx, l.planID, parent.ID, parent.ParentIDs, parent.ChildIDs)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to persist parent endpoint",
			"plan_id", l.planID, "block_id", parent.ID, "error", err)
		errs = append(errs, err)
	}

	err = l.store.UpdateBlockRelationships(ctx, l.planID, child.ID, child.ParentIDs, child.ChildIDs)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to persist child endpoint",
			"plan_id", l.planID, "block_id", child.ID, "error", err)
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
