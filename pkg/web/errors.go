package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/opencare/careplan/pkg/runner"
	"github.com/opencare/careplan/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrCarePlanNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("care_plan_not_found").
			WithDetail("care plan not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, services.ErrBlockNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("block_not_found").
			WithDetail("block not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, services.ErrRunNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("run_not_found").
			WithDetail("no run exists for this care plan")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, runner.ErrTaskNotFound):
		return notFound(c, "task not found on the current block")

	case errors.Is(err, runner.ErrOptionNotFound):
		return notFound(c, "option not found on the current block")

	case errors.Is(err, runner.ErrNotRunning):
		return conflict(c, "the run is not in running mode")

	case errors.Is(err, runner.ErrWrongBlockType), errors.Is(err, runner.ErrEmptyPlan):
		return badRequest(c, err.Error())

	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err):
		return conflict(c, err.Error())

	default:
		// Log unexpected errors but don't expose details
		return internalError(c, err)
	}
}
