// Package file provides file-based persistence for care plans, storing one
// JSON document per plan. It suits local development and tests; production
// deployments use the postgresql implementation.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system.
type Persistence struct {
	root string
}

// NewPersistence creates a file-backed persistence rooted at the given
// directory. A "file://" prefix is tolerated for URL-style configuration.
func NewPersistence(root string) *Persistence {
	return &Persistence{root: strings.Replace(root, "file://", "", 1)}
}

func (p *Persistence) plansDir() string {
	return filepath.Join(p.root, "plans")
}

func (p *Persistence) planPath(id string) string {
	return filepath.Join(p.plansDir(), id+".json")
}

// Close is a no-op for file persistence.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// CarePlans returns every stored care plan, sorted by creation time
// descending.
func (p *Persistence) CarePlans(ctx context.Context) ([]*models.CarePlan, error) {
	root := os.DirFS(p.plansDir())

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list care plan files: %w", err)
	}

	plans := make([]*models.CarePlan, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		planID := strings.TrimSuffix(file, ".json")

		plan, err := p.CarePlanByID(ctx, planID)
		if err != nil {
			if persistence.IsCarePlanNotFound(err) {
				continue
			}

			return nil, err
		}

		plans = append(plans, plan)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})

	return plans, nil
}

// CarePlanByID loads one care plan.
func (p *Persistence) CarePlanByID(_ context.Context, id string) (*models.CarePlan, error) {
	data, err := os.ReadFile(p.planPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewPlanError("GetByID", id, persistence.ErrCarePlanNotFound)
		}

		return nil, persistence.NewPlanError("GetByID", id, err)
	}

	var plan models.CarePlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, persistence.NewPlanError("GetByID", id, err)
	}

	return &plan, nil
}

// SaveCarePlan writes the full plan document, creating the plans directory
// on first use.
func (p *Persistence) SaveCarePlan(_ context.Context, plan *models.CarePlan) error {
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}

	plan.UpdatedAt = now

	if plan.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewPlanError("Save", plan.ID, fmt.Errorf("failed to generate care plan ID: %w", err))
		}

		plan.ID = id.String()
	}

	if err := os.MkdirAll(p.plansDir(), 0o755); err != nil {
		return persistence.NewPlanError("Save", plan.ID, err)
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return persistence.NewPlanError("Save", plan.ID, err)
	}

	if err := os.WriteFile(p.planPath(plan.ID), data, 0o600); err != nil {
		return persistence.NewPlanError("Save", plan.ID, err)
	}

	return nil
}

// DeleteCarePlan removes the plan document.
func (p *Persistence) DeleteCarePlan(_ context.Context, id string) error {
	err := os.Remove(p.planPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewPlanError("Delete", id, persistence.ErrCarePlanNotFound)
		}

		return persistence.NewPlanError("Delete", id, err)
	}

	return nil
}

// CreateBlock appends a block to the plan's flat collection.
func (p *Persistence) CreateBlock(ctx context.Context, planID string, block *models.Block) error {
	plan, err := p.CarePlanByID(ctx, planID)
	if err != nil {
		return err
	}

	if plan.BlockByID(block.ID) != nil {
		return persistence.NewBlockError("Create", planID, block.ID, persistence.ErrBlockAlreadyExists)
	}

	plan.Blocks = append(plan.Blocks, block)

	return p.SaveCarePlan(ctx, plan)
}

// UpdateBlockPayload replaces the block's typed payload, leaving its
// relationships untouched.
func (p *Persistence) UpdateBlockPayload(ctx context.Context, planID string, block *models.Block) error {
	plan, err := p.CarePlanByID(ctx, planID)
	if err != nil {
		return err
	}

	existing := plan.BlockByID(block.ID)
	if existing == nil {
		return persistence.NewBlockError("UpdatePayload", planID, block.ID, persistence.ErrBlockNotFound)
	}

	if existing.Type != block.Type {
		return persistence.NewBlockError("UpdatePayload", planID, block.ID, persistence.ErrBlockTypeImmutable)
	}

	existing.Action = block.Action
	existing.Condition = block.Condition
	existing.Wait = block.Wait

	return p.SaveCarePlan(ctx, plan)
}

// UpdateBlockRelationships replaces both edge sets in full.
func (p *Persistence) UpdateBlockRelationships(ctx context.Context, planID, blockID string, parentIDs, childIDs []string) error {
	plan, err := p.CarePlanByID(ctx, planID)
	if err != nil {
		return err
	}

	existing := plan.BlockByID(blockID)
	if existing == nil {
		return persistence.NewBlockError("UpdateRelationships", planID, blockID, persistence.ErrBlockNotFound)
	}

	existing.ParentIDs = parentIDs
	existing.ChildIDs = childIDs

	return p.SaveCarePlan(ctx, plan)
}

// DeleteBlock removes the block and strips it from every edge set.
func (p *Persistence) DeleteBlock(ctx context.Context, planID, blockID string) error {
	plan, err := p.CarePlanByID(ctx, planID)
	if err != nil {
		return err
	}

	if !plan.RemoveBlock(blockID) {
		return persistence.NewBlockError("Delete", planID, blockID, persistence.ErrBlockNotFound)
	}

	return p.SaveCarePlan(ctx, plan)
}
