package eventbus

import (
	"context"
	"fmt"

	"github.com/mso4sc/experiments/pkg/events"
	"github.com/mso4sc/experiments/pkg/models"
)

// Dispatcher hands runs and resets to remote workers by publishing requests
// keyed by instance id, so requests for one instance stay ordered.
type Dispatcher struct {
	publisher EventPublisher
}

func NewDispatcher(publisher EventPublisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

func (d *Dispatcher) DispatchRun(ctx context.Context, instance *models.AppInstance) error {
	event := events.InstanceRunRequested{
		BaseEvent:    events.NewBaseEvent(events.InstanceRunRequestedEvent, instance.ID),
		DeploymentID: instance.Name,
		RequestedBy:  instance.Owner,
	}

	if err := d.publisher.Publish(ctx, instance.ID, event); err != nil {
		return fmt.Errorf("publish run request for %s: %w", instance.ID, err)
	}

	return nil
}

func (d *Dispatcher) DispatchReset(ctx context.Context, instance *models.AppInstance) error {
	event := events.InstanceResetRequested{
		BaseEvent:    events.NewBaseEvent(events.InstanceResetRequestedEvent, instance.ID),
		DeploymentID: instance.Name,
		RequestedBy:  instance.Owner,
	}

	if err := d.publisher.Publish(ctx, instance.ID, event); err != nil {
		return fmt.Errorf("publish reset request for %s: %w", instance.ID, err)
	}

	return nil
}
