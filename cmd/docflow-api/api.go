// Package main provides the docflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/docflow/pkg/cmd"
	"github.com/dukex/docflow/pkg/services"
	"github.com/dukex/docflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger   *slog.Logger
	stack    *cmd.Stack
	validate *validator.Validate
}

func NewAPI(logger *slog.Logger, stack *cmd.Stack) *API {
	return &API{
		logger:   logger,
		stack:    stack,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	s := a.stack

	handlers := web.NewAPIHandlers(web.Dependencies{
		Workflows: services.NewWorkflow(s.Persistence, s.Executors, s.Engine),
		Runs:      services.NewRuns(s.Persistence, s.Engine, a.logger),
		Approvals: services.NewApprovals(s.Persistence, s.Engine, a.logger, s.Clock),
		Documents: s.Pipeline,
		Sweeper:   s.Sweeper,
		Executors: s.Executors,
		Validator: a.validate,
		Clock:     s.Clock,
	})

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return s.Persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("docflow API")
	})

	handlers.Routes(app)

	return app
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.ShutdownWithTimeout(shutdownTimeout)
		if err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	a.logger.InfoContext(ctx, "Starting docflow API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
