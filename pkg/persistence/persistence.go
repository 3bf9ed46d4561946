// Package persistence provides the data storage abstraction for care plans
// and their blocks.
package persistence

import (
	"context"

	"github.com/opencare/careplan/pkg/models"
)

// Persistence is the backend collaborator of the editor, linker and web
// layer. Block payloads travel serialized per-type; relationship updates
// replace both id sets in full, never as deltas.
type Persistence interface {
	CarePlans(ctx context.Context) ([]*models.CarePlan, error)
	CarePlanByID(ctx context.Context, id string) (*models.CarePlan, error)
	SaveCarePlan(ctx context.Context, plan *models.CarePlan) error
	DeleteCarePlan(ctx context.Context, id string) error

	CreateBlock(ctx context.Context, planID string, block *models.Block) error
	UpdateBlockPayload(ctx context.Context, planID string, block *models.Block) error
	UpdateBlockRelationships(ctx context.Context, planID, blockID string, parentIDs, childIDs []string) error
	DeleteBlock(ctx context.Context, planID, blockID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
