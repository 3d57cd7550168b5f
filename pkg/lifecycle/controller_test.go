package lifecycle

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/mocks"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence/memory"
	"github.com/mso4sc/experiments/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type controllerFixture struct {
	store      *memory.Persistence
	instance   *models.AppInstance
	client     *mocks.MockOrchestrator
	metrics    *Metrics
	controller *Controller
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}
	retry := orchestrator.RetryPolicy{Retries: 1, Interval: time.Millisecond}
	metrics := NewMetrics(prometheus.NewRegistry())

	instances := services.NewInstances(store, client, services.NewCredentials(store), lock.NewMemory(), retry)
	controller := NewController(
		store,
		client,
		services.NewExecutions(store, client),
		instances,
		NewPoller(client, store.Logs(), testPollerConfig(), metrics),
		WithRetryPolicy(retry),
		WithMetrics(metrics),
	)

	return &controllerFixture{
		store:      store,
		instance:   instance,
		client:     client,
		metrics:    metrics,
		controller: controller,
	}
}

func (f *controllerFixture) expectStage(t *testing.T, workflow, status string, raws ...string) {
	t.Helper()

	executionID := "exec-" + workflow
	f.client.On("StartExecution", mock.Anything, "dep1", workflow, mock.Anything, false).
		Return(&orchestrator.Execution{ID: executionID, Status: "pending"}, nil).Once()
	f.client.On("GetExecution", mock.Anything, executionID).
		Return(&orchestrator.Execution{ID: executionID, Status: status}, nil)
	f.client.On("ListEvents", mock.Anything, executionID, 0, 100).
		Return(page(t, raws...), nil)
}

func (f *controllerFixture) status(t *testing.T) models.InstanceStatus {
	t.Helper()

	instance, err := f.store.Instances().GetByID(context.Background(), f.instance.ID)
	require.NoError(t, err)

	return instance.Status
}

func TestController_RunAllStages(t *testing.T) {
	f := newControllerFixture(t)

	f.expectStage(t, models.WorkflowInstall, "terminated", workflowStarted, nodeEvent)
	f.expectStage(t, models.WorkflowRunJobs, "terminated", nodeEvent)
	f.expectStage(t, models.WorkflowUninstall, "terminated")
	f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	status := f.controller.Run(context.Background(), f.instance)

	assert.Equal(t, models.StatusTerminated, status)
	assert.Equal(t, models.StatusTerminated, f.status(t))
	assert.Equal(t, []string{
		"-------INSTALL-------",
		"m n1 (node1)",
		"-------RUN_JOBS-------",
		"m n1 (node1)",
		"-------UNINSTALL-------",
	}, logLines(t, f.store, f.instance.ID))

	executions, err := f.store.Executions().ListByInstance(context.Background(), f.instance.ID)
	require.NoError(t, err)
	assert.Len(t, executions, 3)

	assert.InDelta(t, 1, metricValue(t, f.metrics.runs.WithLabelValues("terminated")), 0)
	assert.InDelta(t, 0, metricValue(t, f.metrics.activeRuns), 0)
	f.client.AssertExpectations(t)
}

func TestController_StopsAtWrongStatus(t *testing.T) {
	f := newControllerFixture(t)

	f.expectStage(t, models.WorkflowInstall, "terminated", workflowStarted, nodeEvent)
	f.expectStage(t, models.WorkflowRunJobs, "failed")
	f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	status := f.controller.Run(context.Background(), f.instance)

	assert.Equal(t, models.StatusFailed, status)
	assert.Equal(t, models.StatusFailed, f.status(t))
	assert.Equal(t, []string{
		"-------INSTALL-------",
		"m n1 (node1)",
		"-------RUN_JOBS-------",
	}, logLines(t, f.store, f.instance.ID))
	f.client.AssertNotCalled(t, "StartExecution", mock.Anything, "dep1", models.WorkflowUninstall, mock.Anything, false)
	f.client.AssertExpectations(t)
}

func TestController_StartFailureCancels(t *testing.T) {
	f := newControllerFixture(t)

	f.client.On("StartExecution", mock.Anything, "dep1", models.WorkflowInstall, mock.Anything, false).
		Return(nil, errors.New("boom")).Once()
	f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	status := f.controller.Run(context.Background(), f.instance)

	assert.Equal(t, models.StatusCancelled, status)
	assert.Equal(t, models.StatusCancelled, f.status(t))
	assert.Equal(t, []string{"Couldn't execute the workflow 'install': boom"}, logLines(t, f.store, f.instance.ID))
	f.client.AssertExpectations(t)
}

func TestController_ExecutionNotCreated(t *testing.T) {
	f := newControllerFixture(t)

	f.expectStage(t, models.WorkflowInstall, "terminated")
	f.client.On("StartExecution", mock.Anything, "dep1", models.WorkflowRunJobs, mock.Anything, false).
		Return(nil, nil).Once()
	f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	status := f.controller.Run(context.Background(), f.instance)

	assert.Equal(t, models.StatusCancelled, status)
	assert.Equal(t, []string{
		"-------INSTALL-------",
		"Couldn't create the execution for workflow 'run_jobs'",
	}, logLines(t, f.store, f.instance.ID))
}

func TestController_UnobservedStageKeepsStatus(t *testing.T) {
	f := newControllerFixture(t)

	f.client.On("StartExecution", mock.Anything, "dep1", models.WorkflowInstall, mock.Anything, false).
		Return(&orchestrator.Execution{ID: "exec-install"}, nil).Once()
	f.client.On("GetExecution", mock.Anything, "exec-install").Return(nil, errors.New("unreachable"))
	f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	status := f.controller.Run(context.Background(), f.instance)

	assert.Equal(t, models.StatusStarted, status)
	assert.Equal(t, models.StatusStarted, f.status(t))
	f.client.AssertNumberOfCalls(t, "GetExecution", 5)
	assert.InDelta(t, 5, metricValue(t, f.metrics.pollErrors), 0)
	f.client.AssertExpectations(t)
}

func TestController_CleanupToleratesMissingDeployment(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "already gone", err: &orchestrator.RemoteError{Op: "DeleteDeployment", StatusCode: http.StatusNotFound}},
		{name: "remote failure", err: &orchestrator.RemoteError{Op: "DeleteDeployment", StatusCode: http.StatusInternalServerError}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t)

			f.expectStage(t, models.WorkflowInstall, "cancelled")
			f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(tt.err).Once()

			status := f.controller.Run(context.Background(), f.instance)

			assert.Equal(t, models.StatusCancelled, status)
			assert.Equal(t, models.StatusCancelled, f.status(t))
			f.client.AssertExpectations(t)
		})
	}
}

func TestController_Reset(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Instances().UpdateStatus(ctx, f.instance.ID, models.StatusFailed))
	require.NoError(t, f.store.Logs().Append(ctx, &models.InstanceLog{InstanceID: f.instance.ID, Message: "old"}))
	require.NoError(t, f.store.Executions().Save(ctx, &models.WorkflowExecution{
		ID: "e1", ExternalID: "exec-1", InstanceID: f.instance.ID, Workflow: models.WorkflowInstall, Owner: "alice",
	}))

	f.client.On("CreateDeployment", mock.Anything, "app1", "dep1", map[string]any{"n": 1}).
		Return(&orchestrator.Deployment{ID: "dep1"}, nil).Once()

	require.NoError(t, f.controller.Reset(ctx, f.instance))

	assert.Equal(t, models.StatusPrepared, f.status(t))
	assert.Empty(t, logLines(t, f.store, f.instance.ID))

	executions, err := f.store.Executions().ListByInstance(ctx, f.instance.ID)
	require.NoError(t, err)
	assert.Empty(t, executions)
	f.client.AssertExpectations(t)
}

func TestController_ResetWithExistingDeployment(t *testing.T) {
	f := newControllerFixture(t)

	f.client.On("CreateDeployment", mock.Anything, "app1", "dep1", mock.Anything).
		Return(nil, &orchestrator.RemoteError{Op: "CreateDeployment", StatusCode: http.StatusConflict}).Once()

	require.NoError(t, f.controller.Reset(context.Background(), f.instance))
	assert.Equal(t, models.StatusPrepared, f.status(t))
}

func TestController_ResetFailsOnRemoteError(t *testing.T) {
	f := newControllerFixture(t)

	f.client.On("CreateDeployment", mock.Anything, "app1", "dep1", mock.Anything).
		Return(nil, &orchestrator.RemoteError{Op: "CreateDeployment", StatusCode: http.StatusBadRequest}).Once()

	err := f.controller.Reset(context.Background(), f.instance)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recreate deployment")
}

func TestController_Abandon(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Instances().UpdateStatus(ctx, f.instance.ID, models.StatusStarted))
	f.client.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	f.controller.Abandon(ctx, f.instance)

	assert.Equal(t, models.StatusCancelled, f.status(t))
	assert.Equal(t, []string{"Run was interrupted, marking instance as cancelled"}, logLines(t, f.store, f.instance.ID))
	f.client.AssertExpectations(t)
}

func metricValue(t *testing.T, metric prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, metric.Write(&out))

	if out.Counter != nil {
		return out.Counter.GetValue()
	}

	return out.Gauge.GetValue()
}
