// Package main provides the care plan API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/opencare/careplan/pkg/eventbus"
	"github.com/opencare/careplan/pkg/persistence"
	"github.com/opencare/careplan/pkg/runner"
	"github.com/opencare/careplan/pkg/services"
	"github.com/opencare/careplan/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runStore    runner.Store
	manager     *runner.Manager
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	runStore runner.Store,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		runStore:    runStore,
		manager:     runner.NewManager(runStore, logger),
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	carePlanService := services.NewCarePlan(a.persistence, a.runStore, a.eventBus, a.logger)
	blockService := services.NewBlock(a.persistence, a.eventBus, a.logger)
	runService := services.NewRun(a.persistence, a.manager, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(carePlanService, blockService, runService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Care Plan API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

// Shutdown stops active run countdowns.
func (a *API) Shutdown() {
	a.manager.Shutdown()
}
