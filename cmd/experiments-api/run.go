package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mso4sc/experiments/pkg/cmd"
	"github.com/mso4sc/experiments/pkg/eventbus"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "experiments-api"

func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule(serviceName)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing experiments API")

	stack, err := cmd.NewStack(ctx, logger, cmd.StackConfig(command))
	if err != nil {
		return err
	}
	defer closeStack(stack, logger)

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	api := newAPI(stack, eventbus.NewDispatcher(bus))

	errCh := make(chan error, 1)
	go func() {
		errCh <- api.Start(command.Int("port"))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down experiments API")

	return errors.Join(api.Shutdown(), <-errCh)
}

func newAPI(stack *cmd.Stack, dispatcher *eventbus.Dispatcher) *web.API {
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
