package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/otelhelper"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// cleanupTimeout bounds the final status write and deployment destruction of
// a run whose context was cancelled.
const cleanupTimeout = 30 * time.Second

// ExecutionStarter starts one workflow on an instance deployment.
type ExecutionStarter interface {
	Start(
		ctx context.Context,
		instance *models.AppInstance,
		workflow, owner string,
		force bool,
		params map[string]any,
	) (*models.WorkflowExecution, error)
}

// InputResolver builds the deployment inputs of an instance.
type InputResolver interface {
	DeploymentInputs(ctx context.Context, instance *models.AppInstance) (map[string]any, error)
}

type ControllerOption func(*Controller)

func WithTracer(tracer trace.Tracer) ControllerOption {
	return func(c *Controller) { c.tracer = tracer }
}

func WithMetrics(metrics *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = metrics }
}

func WithRetryPolicy(policy orchestrator.RetryPolicy) ControllerOption {
	return func(c *Controller) { c.retry = policy }
}

// Controller runs the workflow pipeline of an instance and owns every status
// change after creation. Callers serialize calls per instance.
type Controller struct {
	persistence persistence.Persistence
	client      orchestrator.Client
	starter     ExecutionStarter
	inputs      InputResolver
	poller      *Poller
	retry       orchestrator.RetryPolicy
	tracer      trace.Tracer
	metrics     *Metrics
	logger      *slog.Logger
}

func NewController(
	p persistence.Persistence,
	client orchestrator.Client,
	starter ExecutionStarter,
	inputs InputResolver,
	poller *Poller,
	opts ...ControllerOption,
) *Controller {
	c := &Controller{
		persistence: p,
		client:      client,
		starter:     starter,
		inputs:      inputs,
		poller:      poller,
		retry:       orchestrator.DefaultRetryPolicy,
		tracer:      otelhelper.Tracer("experiments/lifecycle"),
		logger:      log.WithModule("lifecycle"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run executes install, run_jobs and uninstall in order, stopping at the
// first stage that does not terminate cleanly, then destroys the deployment.
// It returns the status stored for the instance.
func (c *Controller) Run(ctx context.Context, instance *models.AppInstance) models.InstanceStatus {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.run",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.DeploymentIDKey, instance.Name),
	)
	defer span.End()

	logger := c.logger.With("instance_id", instance.ID, "deployment_id", instance.Name)
	logger.InfoContext(ctx, "Starting instance run")

	c.metrics.runStarted()

	status := models.StatusStarted
	c.setStatus(ctx, logger, instance.ID, status)

	for _, workflow := range models.Pipeline {
		var proceed bool

		status, proceed = c.stage(ctx, logger, instance, workflow, status)
		if !proceed {
			break
		}
	}

	if ctx.Err() != nil {
		logger.WarnContext(ctx, "Instance run interrupted", "status", status)
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	c.setStatus(cleanupCtx, logger, instance.ID, status)
	c.destroy(cleanupCtx, logger, instance)

	c.metrics.runFinished(string(status))
	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(status)))
	logger.InfoContext(ctx, "Instance run finished", "status", status)

	return status
}

// stage runs one workflow and reports the status it left the instance in and
// whether the pipeline may go on.
func (c *Controller) stage(
	ctx context.Context,
	logger *slog.Logger,
	instance *models.AppInstance,
	workflow string,
	current models.InstanceStatus,
) (models.InstanceStatus, bool) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.stage",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.WorkflowKey, workflow),
	)
	defer span.End()

	logger = logger.With("workflow", workflow)

	execution, err := c.starter.Start(ctx, instance, workflow, instance.Owner, false, nil)
	if err != nil {
		if errors.Is(err, services.ErrExecutionNotCreated) {
			c.appendLog(ctx, logger, instance.ID, fmt.Sprintf("Couldn't create the execution for workflow '%s'", workflow))
		} else {
			c.appendLog(ctx, logger, instance.ID, fmt.Sprintf("Couldn't execute the workflow '%s': %v", workflow, err))
		}

		otelhelper.SetError(span, err, attribute.String(otelhelper.WorkflowKey, workflow))
		logger.ErrorContext(ctx, "Failed to start workflow", "error", err)

		return models.StatusCancelled, false
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ExternalID))
	c.appendLog(ctx, logger, instance.ID, "-------"+strings.ToUpper(workflow)+"-------")

	started := time.Now()
	result := c.poller.Poll(ctx, instance.ID, execution.ExternalID)

	if result.Observed {
		current = result.Status
	}

	c.metrics.stageFinished(workflow, string(current), time.Since(started).Seconds())
	span.SetAttributes(attribute.String(otelhelper.StatusKey, string(current)))
	logger.InfoContext(ctx, "Workflow stage finished", "status", current, "observed", result.Observed, "events", result.Offset)

	return current, models.IsExecutionFinished(current) && !models.IsExecutionWrong(current)
}

// Reset returns a finished instance to prepared: its logs and executions
// are removed and the remote deployment is created again.
func (c *Controller) Reset(ctx context.Context, instance *models.AppInstance) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.reset",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
	)
	defer span.End()

	logger := c.logger.With("instance_id", instance.ID, "deployment_id", instance.Name)

	if err := c.persistence.Instances().UpdateStatus(ctx, instance.ID, models.StatusPrepared); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("reset status: %w", err)
	}

	if err := c.persistence.Logs().DeleteByInstance(ctx, instance.ID); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("delete logs: %w", err)
	}

	if err := c.persistence.Executions().DeleteByInstance(ctx, instance.ID); err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("delete executions: %w", err)
	}

	app, err := c.persistence.Applications().GetByID(ctx, instance.ApplicationID)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("load application: %w", err)
	}

	inputs, err := c.inputs.DeploymentInputs(ctx, instance)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("deployment inputs: %w", err)
	}

	_, err = orchestrator.CreateDeploymentWithRetry(ctx, c.client, c.retry, app.Name, instance.Name, inputs)
	if err != nil && !orchestrator.IsAlreadyExists(err) {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to recreate deployment", "error", err)

		return fmt.Errorf("recreate deployment: %w", err)
	}

	logger.InfoContext(ctx, "Instance reset")

	return nil
}

// Abandon marks an instance whose run was interrupted as cancelled and
// destroys its deployment.
func (c *Controller) Abandon(ctx context.Context, instance *models.AppInstance) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.abandon",
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
	)
	defer span.End()

	logger := c.logger.With("instance_id", instance.ID, "deployment_id", instance.Name, "status", instance.Status)
	logger.WarnContext(ctx, "Abandoning interrupted instance run")

	c.appendLog(ctx, logger, instance.ID, "Run was interrupted, marking instance as cancelled")
	c.setStatus(ctx, logger, instance.ID, models.StatusCancelled)
	c.destroy(ctx, logger, instance)
	c.metrics.runAbandoned()
}

func (c *Controller) setStatus(ctx context.Context, logger *slog.Logger, instanceID string, status models.InstanceStatus) {
	if err := c.persistence.Instances().UpdateStatus(ctx, instanceID, status); err != nil {
		logger.ErrorContext(ctx, "Failed to update instance status", "status", status, "error", err)
	}
}

func (c *Controller) appendLog(ctx context.Context, logger *slog.Logger, instanceID, message string) {
	entry := &models.InstanceLog{InstanceID: instanceID, Generated: time.Now(), Message: message}
	if err := c.persistence.Logs().Append(ctx, entry); err != nil {
		logger.ErrorContext(ctx, "Failed to store instance log line", "error", err)
	}
}

// destroy force-deletes the deployment. A deployment already gone is fine.
func (c *Controller) destroy(ctx context.Context, logger *slog.Logger, instance *models.AppInstance) {
	err := c.client.DeleteDeployment(ctx, instance.Name, true)
	if err == nil || orchestrator.IsNotFound(err) {
		return
	}

	logger.ErrorContext(ctx, "Failed to destroy deployment", "error", err)
}
