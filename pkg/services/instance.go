package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/google/uuid"
	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence"
)

// Instances keeps instance rows and remote deployments in step. It never
// changes an instance's status after creation.
type Instances struct {
	persistence  persistence.Persistence
	orchestrator orchestrator.Client
	credentials  *Credentials
	locker       lock.Locker
	retry        orchestrator.RetryPolicy
	logger       *slog.Logger
}

func NewInstances(
	p persistence.Persistence,
	client orchestrator.Client,
	credentials *Credentials,
	locker lock.Locker,
	retry orchestrator.RetryPolicy,
) *Instances {
	return &Instances{
		persistence:  p,
		orchestrator: client,
		credentials:  credentials,
		locker:       locker,
		retry:        retry,
		logger:       log.WithModule("instances"),
	}
}

type CreateInstanceRequest struct {
	ApplicationID string            `json:"application_id" validate:"required"`
	Name          string            `json:"name"           validate:"required,min=3,max=64"`
	Description   string            `json:"description"    validate:"max=256"`
	Inputs        map[string]any    `json:"inputs"`
	HPCInputs     map[string]string `json:"hpc_inputs"`
	Owner         string            `json:"-"`
}

// Create validates the inputs, creates the remote deployment and records the
// instance as prepared. If the record cannot be stored the deployment is
// destroyed again.
func (s *Instances) Create(ctx context.Context, req CreateInstanceRequest) (*models.AppInstance, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, ErrEmptyOwnerID
	}
	if strings.TrimSpace(req.Name) == "" || req.ApplicationID == "" {
		return nil, NewValidationError("CreateInstance", "invalid_request", "name and application_id are required", ErrInvalidRequest)
	}
	for name := range req.HPCInputs {
		if _, clash := req.Inputs[name]; clash {
			return nil, NewValidationError("CreateInstance", "invalid_inputs",
				fmt.Sprintf("input %q is given both as a value and as an hpc", name), ErrInvalidInputs)
		}
	}

	app, err := s.persistence.Applications().GetByID(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}

	instance := &models.AppInstance{
		ID:            uuid.NewString(),
		Name:          req.Name,
		ApplicationID: app.ID,
		Description:   req.Description,
		Inputs:        req.Inputs,
		HPCInputs:     req.HPCInputs,
		Outputs:       map[string]any{},
		Owner:         req.Owner,
		Status:        models.StatusPrepared,
	}
	if instance.Inputs == nil {
		instance.Inputs = map[string]any{}
	}

	inputs, err := s.DeploymentInputs(ctx, instance)
	if err != nil {
		return nil, err
	}

	bp, err := s.orchestrator.GetBlueprint(ctx, app.Name)
	if err != nil {
		return nil, fmt.Errorf("get blueprint %s: %w", app.Name, err)
	}
	if err := validateInputs(bp, inputs); err != nil {
		return nil, err
	}

	dep, err := orchestrator.CreateDeploymentWithRetry(ctx, s.orchestrator, s.retry, app.Name, instance.Name, inputs)
	if err != nil {
		return nil, fmt.Errorf("create deployment %s: %w", instance.Name, err)
	}
	if dep != nil {
		if dep.Outputs != nil {
			instance.Outputs = dep.Outputs
		}
		if instance.Description == "" {
			instance.Description = dep.Description
		}
	}

	if err := s.persistence.Instances().Save(ctx, instance); err != nil {
		if delErr := s.orchestrator.DeleteDeployment(ctx, instance.Name, true); delErr != nil {
			s.logger.ErrorContext(ctx, "Failed to destroy deployment after save error",
				"deployment_id", instance.Name,
				"error", delErr,
			)
		}

		return nil, fmt.Errorf("save instance %s: %w", instance.Name, err)
	}

	s.logger.InfoContext(ctx, "Instance created",
		"instance_id", instance.ID,
		"deployment_id", instance.Name,
		"application_id", app.ID,
	)

	return instance, nil
}

// DeploymentInputs merges the instance inputs with the credentials of the
// HPCs it references.
func (s *Instances) DeploymentInputs(ctx context.Context, instance *models.AppInstance) (map[string]any, error) {
	inputs := maps.Clone(instance.Inputs)
	if inputs == nil {
		inputs = map[string]any{}
	}

	for name, hpcID := range instance.HPCInputs {
		hpc, err := s.credentials.ResolveHPC(ctx, hpcID, instance.Owner)
		if err != nil {
			return nil, fmt.Errorf("hpc for input %s: %w", name, err)
		}
		inputs[name] = hpc.Inputs()
	}

	return inputs, nil
}

// Get returns the instance if owner owns it.
func (s *Instances) Get(ctx context.Context, id, owner string) (*models.AppInstance, error) {
	instance, err := s.persistence.Instances().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := persistence.CheckOwner("GetInstance", persistence.EntityInstance, id, owner, instance.Owner); err != nil {
		return nil, err
	}

	return instance, nil
}

func (s *Instances) List(ctx context.Context, owner string) ([]*models.AppInstance, error) {
	return s.persistence.Instances().List(ctx, owner)
}

// Events returns the log lines after offset with the current status.
func (s *Instances) Events(ctx context.Context, id string, offset int, owner string) (*models.InstanceEvents, error) {
	if offset < 0 {
		return nil, NewValidationError("InstanceEvents", "invalid_offset", "offset must not be negative", ErrInvalidRequest)
	}

	instance, err := s.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	lines, err := s.persistence.Logs().List(ctx, id, offset)
	if err != nil {
		return nil, err
	}

	logs := make([]string, len(lines))
	for i, line := range lines {
		logs[i] = line.Message
	}

	return &models.InstanceEvents{
		Logs:     logs,
		Last:     offset + len(logs),
		Status:   instance.Status,
		Finished: instance.IsFinished(),
	}, nil
}

// Remove destroys the deployment and deletes the instance. The row is kept
// when the deployment could not be destroyed and the instance is still
// executing.
func (s *Instances) Remove(ctx context.Context, id, owner string, force bool) error {
	instance, err := s.Get(ctx, id, owner)
	if err != nil {
		return err
	}

	lease, err := s.locker.TryAcquire(ctx, lock.InstanceKey(id))
	if errors.Is(err, lock.ErrLocked) {
		return &ServiceError{Op: "RemoveInstance", Code: "instance_busy", Message: "instance is running", Err: ErrInstanceBusy}
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logger.WarnContext(ctx, "Failed to release instance lock", "instance_id", id, "error", err)
		}
	}()

	destroyErr := s.orchestrator.DeleteDeployment(ctx, instance.Name, force)
	if orchestrator.IsNotFound(destroyErr) {
		destroyErr = nil
	}

	if destroyErr != nil && !instance.IsFinished() {
		return fmt.Errorf("destroy deployment %s: %w", instance.Name, destroyErr)
	}

	if destroyErr != nil {
		s.logger.WarnContext(ctx, "Deployment not destroyed, removing finished instance anyway",
			"instance_id", id,
			"deployment_id", instance.Name,
			"error", destroyErr,
		)
	}

	if err := s.persistence.Instances().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "Instance removed", "instance_id", id, "deployment_id", instance.Name)

	return nil
}

// EnsureIdle fails with ErrInstanceBusy while a workflow of the instance is
// executing.
func EnsureIdle(instance *models.AppInstance) error {
	if instance.IsFinished() {
		return nil
	}

	return &ServiceError{
		Op:      "EnsureIdle",
		Code:    "instance_busy",
		Message: fmt.Sprintf("instance %s is %s", instance.ID, instance.Status),
		Err:     ErrInstanceBusy,
	}
}
