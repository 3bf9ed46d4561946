// Package web provides HTTP handlers and REST API endpoints for care plan
// management and bedside execution.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/services"
)

type APIHandlers struct {
	carePlanService *services.CarePlan
	blockService    *services.Block
	runService      *services.Run
	validator       *validator.Validate
}

func NewAPIHandlers(
	carePlanService *services.CarePlan,
	blockService *services.Block,
	runService *services.Run,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		carePlanService: carePlanService,
		blockService:    blockService,
		runService:      runService,
		validator:       validator,
	}
}

// Register wires every route onto the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	plans := app.Group("/care-plans")
	plans.Get("/", h.GetCarePlans)
	plans.Post("/", h.CreateCarePlan)
	plans.Get("/:id", h.GetCarePlan)
	plans.Patch("/:id", h.UpdateCarePlan)
	plans.Delete("/:id", h.DeleteCarePlan)
	plans.Get("/:id/outline", h.GetOutline)

	plans.Post("/:id/blocks", h.CreateBlock)
	plans.Post("/:id/blocks/link", h.LinkBlocks)
	plans.Patch("/:id/blocks/:blockId", h.UpdateBlockPayload)
	plans.Patch("/:id/blocks/:blockId/relationships", h.UpdateBlockRelationships)
	plans.Delete("/:id/blocks/:blockId", h.DeleteBlock)

	plans.Post("/:id/run", h.StartRun)
	plans.Get("/:id/run", h.GetRun)
	plans.Delete("/:id/run", h.DiscardRun)
	plans.Post("/:id/run/toggle-task", h.ToggleTask)
	plans.Post("/:id/run/choose-option", h.ChooseOption)
	plans.Post("/:id/run/start-timer", h.StartTimer)
	plans.Post("/:id/run/skip", h.SkipBlock)
	plans.Post("/:id/run/stop", h.StopRun)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.carePlanService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Care plan API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Care plan API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetCarePlans(c fiber.Ctx) error {
	req, err := parseListCarePlansRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters")
	}

	result, err := h.carePlanService.ListCarePlans(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func parseListCarePlansRequest(c fiber.Ctx) (*services.ListCarePlansRequest, error) {
	req := &services.ListCarePlansRequest{
		Owner: c.Query("owner"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	return req, nil
}

func (h *APIHandlers) GetCarePlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Care plan ID is required")
	}

	plan, err := h.carePlanService.GetCarePlan(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(plan)
}

func (h *APIHandlers) CreateCarePlan(c fiber.Ctx) error {
	var req CreateCarePlanRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.carePlanService.CreateCarePlan(c.Context(), &services.CreateCarePlanRequest{
		Title:     req.Title,
		PatientID: req.PatientID,
		EpisodeID: req.EpisodeID,
		Owner:     req.Owner,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateCarePlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Care plan ID is required")
	}

	var req UpdateCarePlanRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	// Apply partial updates over the current state
	existing, err := h.carePlanService.GetCarePlan(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	update := &services.UpdateCarePlanRequest{
		Title:     existing.Title,
		EpisodeID: existing.EpisodeID,
	}

	if req.Title != nil {
		update.Title = *req.Title
	}

	if req.EpisodeID != nil {
		update.EpisodeID = *req.EpisodeID
	}

	updated, err := h.carePlanService.UpdateCarePlan(c.Context(), id, update)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteCarePlan(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Care plan ID is required")
	}

	if err := h.carePlanService.DeleteCarePlan(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetOutline(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Care plan ID is required")
	}

	outline, err := h.blockService.Outline(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(outline)
}

func (h *APIHandlers) CreateBlock(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	var req BlockRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	block, err := req.ToBlock(models.NewBlockID())
	if err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.blockService.CreateBlock(c.Context(), planID, block)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateBlockPayload(c fiber.Ctx) error {
	planID := c.Params("id")
	blockID := c.Params("blockId")

	if planID == "" || blockID == "" {
		return badRequest(c, "Care plan ID and block ID are required")
	}

	var req BlockRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	block, err := req.ToBlock(blockID)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.blockService.UpdateBlockPayload(c.Context(), planID, block); err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(block)
}

func (h *APIHandlers) UpdateBlockRelationships(c fiber.Ctx) error {
	planID := c.Params("id")
	blockID := c.Params("blockId")

	if planID == "" || blockID == "" {
		return badRequest(c, "Care plan ID and block ID are required")
	}

	var req UpdateRelationshipsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err := h.blockService.UpdateBlockRelationships(c.Context(), planID, blockID, req.ParentIDs, req.ChildIDs)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) LinkBlocks(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	var req LinkBlocksRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.blockService.Link(c.Context(), planID, req.DraggedBlockID, req.TargetBlockID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteBlock(c fiber.Ctx) error {
	planID := c.Params("id")
	blockID := c.Params("blockId")

	if planID == "" || blockID == "" {
		return badRequest(c, "Care plan ID and block ID are required")
	}

	if err := h.blockService.DeleteBlock(c.Context(), planID, blockID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) StartRun(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	run, err := h.runService.StartRun(c.Context(), planID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	run, err := h.runService.GetRun(c.Context(), planID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) ToggleTask(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	var req ToggleTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.ToggleTask(c.Context(), planID, req.TaskID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) ChooseOption(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	var req ChooseOptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	run, err := h.runService.ChooseOption(c.Context(), planID, req.OptionID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) StartTimer(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	run, err := h.runService.StartTimer(c.Context(), planID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) SkipBlock(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	run, err := h.runService.Skip(c.Context(), planID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) StopRun(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	run, err := h.runService.StopRun(c.Context(), planID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) DiscardRun(c fiber.Ctx) error {
	planID := c.Params("id")
	if planID == "" {
		return badRequest(c, "Care plan ID is required")
	}

	if err := h.runService.DiscardRun(c.Context(), planID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
