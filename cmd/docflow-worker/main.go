package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/docflow/pkg/cmd"
	"github.com/dukex/docflow/pkg/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "worker-id",
			Aliases: []string{"id"},
			Usage:   "Custom worker ID (auto-generated if not provided)",
			Sources: cli.EnvVars("WORKER_ID"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron expression for the timer and approval sweep",
			Value:   DefaultSweepSchedule,
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "documents-schedule",
			Usage:   "Cron expression for processing pending documents, disabled when empty",
			Value:   DefaultDocumentsSchedule,
			Sources: cli.EnvVars("DOCUMENTS_SCHEDULE"),
		},
		&cli.IntFlag{
			Name:    "pending-limit",
			Usage:   "Pending documents processed per batch",
			Value:   10,
			Sources: cli.EnvVars("PENDING_LIMIT"),
		},
	}, cmd.StackFlags()...)

	command := &cli.Command{
		Name:                  "docflow-worker",
		Usage:                 "Fire due timers, expire approvals and process pending documents",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("docflow-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing docflow worker")

			stack, err := cmd.NewStack(ctx, cmd.StackConfigFromCommand(command, "docflow-worker"), logger)
			if err != nil {
				return err
			}

			defer func() {
				err := stack.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			worker := NewWorker(logger, stack, Config{
				SweepSchedule:     command.String("sweep-schedule"),
				DocumentsSchedule: command.String("documents-schedule"),
				PendingLimit:      command.Int("pending-limit"),
			})

			return worker.Run(ctx)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("docflow-worker").Error("docflow-worker exited", "error", err)
		stop()
		os.Exit(1)
	}
}
