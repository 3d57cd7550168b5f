package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mso4sc/experiments/pkg/cmd"
	"github.com/mso4sc/experiments/pkg/lifecycle"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/web"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const serviceName = "experiments"

func serve(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.WithModule(serviceName)
	logger.InfoContext(ctx, "Initializing experiments portal")

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
	defer closeStack(stack, logger)

	controller := stack.NewController(cmd.PollerConfig(command), tracing...)
	pool := lifecycle.NewPool(controller, stack.Locker, command.Int("workers"))

	janitor, err := lifecycle.NewJanitor(stack.Persistence.Instances(), stack.Locker, controller, command.String("janitor-schedule"))
	if err != nil {
		return err
	}

	api := newAPI(stack, pool)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := api.Start(command.Int("port")); err != nil {
			return fmt.Errorf("api server: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		if err := janitor.Start(groupCtx); err != nil {
			return err
		}

		<-groupCtx.Done()
		janitor.Stop()

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down experiments portal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
		defer cancel()

		apiErr := api.Shutdown()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "Pool did not stop in time", "error", err)
		}

		return apiErr
	})

	return group.Wait()
}

func newAPI(stack *cmd.Stack, dispatcher lifecycle.Dispatcher) *web.API {
	return web.NewAPI(
		web.Services{
			Applications: stack.Applications,
			Instances:    stack.Instances,
			Executions:   stack.Executions,
			Credentials:  stack.Credentials,
		},
		dispatcher,
		stack.Persistence,
		stack.Registry,
	)
}

func closeStack(stack *cmd.Stack, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cmd.ShutdownTimeout)
	defer cancel()

	if err := stack.Close(ctx); err != nil {
		logger.ErrorContext(ctx, "Failed to close stack", "error", err)
	}
}

// sweep runs one janitor pass. It is meant for a process that starts after
// every worker has stopped, when no lock can be held legitimately.
func sweep(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule(serviceName)

	stack, err := cmd.NewStack(ctx, logger, cmd.StackConfig(command))
	if err != nil {
		return err
	}
	defer closeStack(stack, logger)

	controller := stack.NewController(cmd.PollerConfig(command))

	janitor, err := lifecycle.NewJanitor(stack.Persistence.Instances(), stack.Locker, controller, command.String("janitor-schedule"))
	if err != nil {
		return err
	}

	abandoned, err := janitor.Sweep(ctx)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Sweep finished", "abandoned", abandoned)

	return nil
}
