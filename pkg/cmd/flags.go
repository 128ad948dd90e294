package cmd

import (
	"time"

	"github.com/dukex/docflow/pkg/ocr"
	"github.com/dukex/docflow/pkg/sweeper"
	"github.com/dukex/docflow/pkg/webhook"
	cli "github.com/urfave/cli/v3"
)

// StackFlags are the flags shared by every docflow command that assembles a
// Stack.
func StackFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL for persistence (postgres://... or memory)",
			Value:   "memory",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers used when the event bus is kafka",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for run locks shared between processes",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "workflows-dir",
			Usage:   "Directory of JSON workflow definitions imported at startup",
			Sources: cli.EnvVars("WORKFLOWS_DIR"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "ai-provider",
			Usage:   "Language model provider for summaries (anthropic, openai)",
			Sources: cli.EnvVars("AI_PROVIDER"),
		},
		&cli.StringFlag{
			Name:    "ai-api-key",
			Usage:   "API key of the language model provider",
			Sources: cli.EnvVars("AI_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "ai-model",
			Usage:   "Model name, the provider default when empty",
			Sources: cli.EnvVars("AI_MODEL"),
		},
		&cli.StringFlag{
			Name:    "azure-storage-connection-string",
			Usage:   "Azure Blob Storage connection string for documents referenced by storage key",
			Sources: cli.EnvVars("AZURE_STORAGE_CONNECTION_STRING"),
		},
		&cli.StringFlag{
			Name:    "azure-container",
			Usage:   "Azure Blob Storage container",
			Value:   "documents",
			Sources: cli.EnvVars("AZURE_STORAGE_CONTAINER"),
		},
		&cli.StringFlag{
			Name:    "storage-root",
			Usage:   "Local directory holding documents referenced by storage key",
			Sources: cli.EnvVars("STORAGE_ROOT"),
		},
		&cli.StringFlag{
			Name:    "ocr-languages",
			Usage:   "Tesseract languages, e.g. eng+deu",
			Value:   "eng",
			Sources: cli.EnvVars("OCR_LANGUAGES"),
		},
		&cli.StringFlag{
			Name:    "thumbnail-dir",
			Usage:   "Directory for generated thumbnails, disabled when empty",
			Sources: cli.EnvVars("THUMBNAIL_DIR"),
		},
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Documents processed in parallel by a batch",
			Value:   4,
			Sources: cli.EnvVars("PIPELINE_CONCURRENCY"),
		},
		&cli.IntFlag{
			Name:    "sweep-batch-size",
			Usage:   "Timers and approvals handled per sweep",
			Value:   100,
			Sources: cli.EnvVars("SWEEP_BATCH_SIZE"),
		},
		&cli.DurationFlag{
			Name:    "stale-after",
			Usage:   "Age after which a running run is considered stranded",
			Value:   5 * time.Minute,
			Sources: cli.EnvVars("STALE_AFTER"),
		},
		&cli.StringSliceFlag{
			Name:    "webhook-url",
			Usage:   "Endpoint receiving lifecycle webhooks, repeatable",
			Sources: cli.EnvVars("WEBHOOK_URLS"),
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Usage:   "Secret used to sign webhook bodies",
			Sources: cli.EnvVars("WEBHOOK_SECRET"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// StackConfigFromCommand reads the StackFlags of command.
func StackConfigFromCommand(command *cli.Command, serviceName string) StackConfig {
	return StackConfig{
		ServiceName:  serviceName,
		DatabaseURL:  command.String("database-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.StringSlice("kafka-brokers"),
		RedisURL:     command.String("redis-url"),
		WorkflowsDir: command.String("workflows-dir"),
		Tracing:      command.Bool("tracing"),
		AI: AIConfig{
			Provider: command.String("ai-provider"),
			APIKey:   command.String("ai-api-key"),
			Model:    command.String("ai-model"),
		},
		Storage: StorageConfig{
			AzureConnectionString: command.String("azure-storage-connection-string"),
			AzureContainer:        command.String("azure-container"),
			LocalRoot:             command.String("storage-root"),
		},
		OCR:          ocr.Config{Languages: command.String("ocr-languages")},
		ThumbnailDir: command.String("thumbnail-dir"),
		Concurrency:  command.Int("concurrency"),
		Sweeper: sweeper.Config{
			BatchSize:  command.Int("sweep-batch-size"),
			StaleAfter: command.Duration("stale-after"),
		},
		Webhooks: webhook.DelivererConfig{
			Endpoints: command.StringSlice("webhook-url"),
			Secret:    command.String("webhook-secret"),
		},
	}
}
