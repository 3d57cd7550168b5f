package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mso4sc/experiments/pkg/cmd"
	"github.com/mso4sc/experiments/pkg/lifecycle"
	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "experiments-worker"

func run(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule(serviceName).With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing experiments worker")

	tracing, shutdownTracing, err := cmd.NewTracing(ctx, command.Bool("tracing"), serviceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("Failed to shut down tracing", "error", err)
		}
	}()

	stack, err := cmd.NewStack(ctx, logger, cmd.StackConfig(command))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()

		if err := stack.Close(closeCtx); err != nil {
			logger.ErrorContext(closeCtx, "Failed to close stack", "error", err)
		}
	}()

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	controller := stack.NewController(cmd.PollerConfig(command), tracing...)
	pool := lifecycle.NewPool(controller, stack.Locker, command.Int("workers"))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()

		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Pool did not stop in time", "error", err)
		}
	}()

	janitor, err := newJanitor(stack.Persistence.Instances(), stack.Locker, controller, command.String("janitor-schedule"), logger)
	if err != nil {
		return err
	}
	if janitor != nil {
		if err := janitor.Start(ctx); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	worker := NewWorkerManager(workerID, stack.Persistence.Instances(), bus, pool, logger)

	return worker.Start(ctx)
}

// newJanitor returns nil when locks are local to this process. Other worker
// replicas would hold runs this janitor cannot see, and it would abandon them.
func newJanitor(instances persistence.InstanceRepository, locker lock.Locker, abandoner lifecycle.Abandoner, schedule string, logger *slog.Logger) (*lifecycle.Janitor, error) {
	if _, local := locker.(*lock.Memory); local {
		logger.Warn("Janitor disabled, it needs a shared Redis lock (--redis-url)")

		return nil, nil
	}

	return lifecycle.NewJanitor(instances, locker, abandoner, schedule)
}
