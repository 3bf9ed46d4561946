package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/opencare/careplan/pkg/cmd"
	"github.com/opencare/careplan/pkg/log"
	"github.com/opencare/careplan/pkg/otelhelper"
	"github.com/opencare/careplan/pkg/reminders"
)

func main() {
	command := &cli.Command{
		Name:                  "careplan-reminder",
		Usage:                 "Watch active runs and surface stalled care plans",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "redis-url",
				Usage:    "Redis connection URL holding run state",
				Required: true,
				Sources:  cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "stall-threshold",
				Usage:   "Idle time before a running plan counts as stalled",
				Value:   reminders.DefaultStallThreshold,
				Sources: cli.EnvVars("STALL_THRESHOLD"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron expression for the sweep cadence",
				Value:   reminders.DefaultSweepSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("reminder-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("careplan-reminder").With("worker_id", workerID)

			logger.Info("Initializing reminder worker", "worker_id", workerID)

			if _, err := otelhelper.NewTracer(ctx, "careplan-reminder"); err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			runStore, err := cmd.NewRunStore(command.String("redis-url"))
			if err != nil {
				return err
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			worker := NewWorker(
				workerID,
				runStore,
				eventBus,
				logger,
				command.Duration("stall-threshold"),
				command.String("sweep-schedule"),
			)

			worker.Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
