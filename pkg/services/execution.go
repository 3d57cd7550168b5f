package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence"
)

// Executions starts remote workflows and records them.
type Executions struct {
	persistence  persistence.Persistence
	orchestrator orchestrator.Client
	logger       *slog.Logger
}

func NewExecutions(p persistence.Persistence, client orchestrator.Client) *Executions {
	return &Executions{persistence: p, orchestrator: client, logger: log.WithModule("executions")}
}

// Start runs workflow on the instance's deployment and records the execution.
func (e *Executions) Start(
	ctx context.Context,
	instance *models.AppInstance,
	workflow, owner string,
	force bool,
	params map[string]any,
) (*models.WorkflowExecution, error) {
	if err := persistence.CheckOwner("StartExecution", persistence.EntityInstance, instance.ID, owner, instance.Owner); err != nil {
		return nil, err
	}

	remote, err := e.orchestrator.StartExecution(ctx, instance.Name, workflow, params, force)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, ErrExecutionNotCreated
	}

	execution := &models.WorkflowExecution{
		ID:         uuid.NewString(),
		ExternalID: remote.ID,
		InstanceID: instance.ID,
		Workflow:   workflow,
		Owner:      owner,
	}

	if err := e.persistence.Executions().Save(ctx, execution); err != nil {
		e.logger.ErrorContext(ctx, "Execution started but not recorded",
			"instance_id", instance.ID,
			"external_id", remote.ID,
			"workflow", workflow,
			"error", err,
		)

		return nil, fmt.Errorf("save execution: %w", err)
	}

	return execution, nil
}

func (e *Executions) Get(ctx context.Context, id, owner string) (*models.WorkflowExecution, error) {
	execution, err := e.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := persistence.CheckOwner("GetExecution", persistence.EntityExecution, id, owner, execution.Owner); err != nil {
		return nil, err
	}

	return execution, nil
}

// List returns the executions of an instance owned by owner.
func (e *Executions) List(ctx context.Context, instanceID, owner string) ([]*models.WorkflowExecution, error) {
	instance, err := e.persistence.Instances().GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if err := persistence.CheckOwner("ListExecutions", persistence.EntityInstance, instanceID, owner, instance.Owner); err != nil {
		return nil, err
	}

	return e.persistence.Executions().ListByInstance(ctx, instanceID)
}
