package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/docflow/pkg/cmd"
	"github.com/dukex/docflow/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	flags := append([]cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
	}, cmd.StackFlags()...)

	command := &cli.Command{
		Name:                  "docflow-api",
		Usage:                 "Manage document workflows, runs and approvals",
		EnableShellCompletion: true,
		Flags:                 flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing docflow API")

			stack, err := cmd.NewStack(ctx, cmd.StackConfigFromCommand(command, "docflow-api"), logger)
			if err != nil {
				return err
			}

			defer func() {
				err := stack.Close(context.Background())
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close components", "error", err)
				}
			}()

			// With an in-process bus nobody else sees the webhook requests.
			if command.String("event-bus") == "gochannel" {
				err = stack.StartWebhookDelivery(ctx)
				if err != nil {
					return err
				}
			}

			return NewAPI(logger, stack).Start(ctx, command.Int("port"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		log.WithModule("api").Error("docflow-api exited", "error", err)
		stop()
		os.Exit(1)
	}
}
