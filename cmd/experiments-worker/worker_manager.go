package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mso4sc/experiments/pkg/eventbus"
	"github.com/mso4sc/experiments/pkg/events"
	"github.com/mso4sc/experiments/pkg/lifecycle"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/services"
)

// WorkerManager turns run and reset requests from the event bus into pool
// tasks.
type WorkerManager struct {
	id         string
	logger     *slog.Logger
	instances  persistence.InstanceRepository
	eventBus   eventbus.EventSubscriber
	dispatcher lifecycle.Dispatcher
}

func NewWorkerManager(
	id string,
	instances persistence.InstanceRepository,
	eventBus eventbus.EventSubscriber,
	dispatcher lifecycle.Dispatcher,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:         id,
		logger:     logger.With("worker_id", id),
		instances:  instances,
		eventBus:   eventBus,
		dispatcher: dispatcher,
	}
}

// Start subscribes to the bus and blocks until ctx is done.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.InstanceRunRequestedEvent, w.handleRunRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.InstanceResetRequestedEvent, w.handleResetRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	<-ctx.Done()
	w.logger.Info("Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleRunRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.InstanceRunRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for InstanceRunRequested")

		return nil
	}

	return w.dispatch(ctx, "run", request.BaseEvent, w.dispatcher.DispatchRun)
}

func (w *WorkerManager) handleResetRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.InstanceResetRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for InstanceResetRequested")

		return nil
	}

	return w.dispatch(ctx, "reset", request.BaseEvent, w.dispatcher.DispatchReset)
}

// dispatch hands the request to the pool. Requests for unknown, busy or
// already running instances are dropped; only failures of this worker are
// returned so the message is redelivered.
func (w *WorkerManager) dispatch(
	ctx context.Context,
	kind string,
	event events.BaseEvent,
	dispatch func(context.Context, *models.AppInstance) error,
) error {
	logger := w.logger.With("instance_id", event.InstanceID, "event_id", event.ID, "request", kind)
	logger.InfoContext(ctx, "Processing instance request")

	instance, err := w.instances.GetByID(ctx, event.InstanceID)
	if persistence.IsNotFound(err) {
		logger.WarnContext(ctx, "Instance no longer exists, dropping request")

		return nil
	}
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load instance", "error", err)

		return err
	}

	if err := services.EnsureIdle(instance); err != nil {
		logger.InfoContext(ctx, "Instance is not idle, dropping request", "status", instance.Status)

		return nil
	}

	err = dispatch(ctx, instance)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrInstanceBusy):
		logger.InfoContext(ctx, "Instance is locked by another worker, dropping request")

		return nil
	default:
		logger.ErrorContext(ctx, "Failed to dispatch instance request", "error", err)

		return err
	}
}
