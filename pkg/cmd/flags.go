// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"time"

	"github.com/mso4sc/experiments/pkg/lifecycle"
	cli "github.com/urfave/cli/v3"
)

// StoreFlags configure persistence, the orchestrator client and the lock
// backend. Every binary needs them.
func StoreFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL (postgres://... or memory://)",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:     "orchestrator-url",
			Usage:    "Base URL of the orchestrator REST API",
			Required: true,
			Sources:  cli.EnvVars("ORCHESTRATOR_URL"),
		},
		&cli.StringFlag{
			Name:    "orchestrator-user",
			Usage:   "Orchestrator user name",
			Sources: cli.EnvVars("ORCHESTRATOR_USER"),
		},
		&cli.StringFlag{
			Name:    "orchestrator-password",
			Usage:   "Orchestrator password",
			Sources: cli.EnvVars("ORCHESTRATOR_PASSWORD"),
		},
		&cli.StringFlag{
			Name:    "orchestrator-tenant",
			Usage:   "Orchestrator tenant",
			Value:   "default_tenant",
			Sources: cli.EnvVars("ORCHESTRATOR_TENANT"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the instance locks (in-memory locks when empty)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "secret-key",
			Usage:   "Key used to encrypt stored HPC credentials",
			Sources: cli.EnvVars("SECRET_KEY"),
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
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}
}

// EventBusFlags select the transport between the API and the workers.
func EventBusFlags(required bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "event-bus",
			Usage:    "Event bus type (kafka, gochannel)",
			Required: required,
			Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}

// WorkerFlags tune the lifecycle workers.
func WorkerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Delay between two polls of a running execution",
			Value:   lifecycle.DefaultPollInterval,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
		&cli.DurationFlag{
			Name:    "max-poll-duration",
			Usage:   "Longest time a single workflow is followed (0 disables the limit)",
			Value:   lifecycle.DefaultMaxPollDuration,
			Sources: cli.EnvVars("MAX_POLL_DURATION"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Number of instance runs executed concurrently",
			Value:   lifecycle.DefaultWorkers,
			Sources: cli.EnvVars("WORKERS"),
		},
		&cli.StringFlag{
			Name:    "janitor-schedule",
			Usage:   "Cron schedule of the interrupted run sweep",
			Value:   lifecycle.DefaultJanitorSchedule,
			Sources: cli.EnvVars("JANITOR_SCHEDULE"),
		},
	}
}

// APIFlags configure the HTTP server.
func APIFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Usage:   "HTTP port",
			Value:   9091,
			Sources: cli.EnvVars("PORT"),
		},
	}
}

// StackConfig reads the store flags of command.
func StackConfig(command *cli.Command) Config {
	return Config{
		DatabaseURL:          command.String("database-url"),
		OrchestratorURL:      command.String("orchestrator-url"),
		OrchestratorUser:     command.String("orchestrator-user"),
		OrchestratorPassword: command.String("orchestrator-password"),
		OrchestratorTenant:   command.String("orchestrator-tenant"),
		RedisURL:             command.String("redis-url"),
		SecretKey:            command.String("secret-key"),
	}
}

// PollerConfig reads the worker flags of command.
func PollerConfig(command *cli.Command) lifecycle.PollerConfig {
	config := lifecycle.DefaultPollerConfig()
	config.Interval = command.Duration("poll-interval")
	config.MaxDuration = command.Duration("max-poll-duration")

	return config
}

// ShutdownTimeout bounds graceful shutdown of servers and worker pools.
const ShutdownTimeout = 30 * time.Second
