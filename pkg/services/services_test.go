package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/mocks"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errDisk = errors.New("disk full")

// failingStore wraps a store whose application and instance saves fail.
type failingStore struct {
	*memory.Persistence
}

type failingApplications struct {
	persistence.ApplicationRepository
}

func (failingApplications) Save(context.Context, *models.Application) error { return errDisk }

type failingInstances struct {
	persistence.InstanceRepository
}

func (failingInstances) Save(context.Context, *models.AppInstance) error { return errDisk }

func (f failingStore) Applications() persistence.ApplicationRepository {
	return failingApplications{f.Persistence.Applications()}
}

func (f failingStore) Instances() persistence.InstanceRepository {
	return failingInstances{f.Persistence.Instances()}
}

var testRetry = orchestrator.RetryPolicy{Retries: 3, Interval: time.Millisecond}

func blueprint(inputs map[string]orchestrator.InputDefinition) *orchestrator.Blueprint {
	return &orchestrator.Blueprint{ID: "app1", Plan: orchestrator.Plan{Inputs: inputs}}
}

type fixture struct {
	store        *memory.Persistence
	orchestrator *mocks.MockOrchestrator
	locker       *lock.Memory
	apps         *Applications
	instances    *Instances
	credentials  *Credentials
	executions   *Executions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:        memory.NewPersistence(),
		orchestrator: &mocks.MockOrchestrator{},
		locker:       lock.NewMemory(),
	}
	f.credentials = NewCredentials(f.store)
	f.apps = NewApplications(f.store, f.orchestrator)
	f.instances = NewInstances(f.store, f.orchestrator, f.credentials, f.locker, testRetry)
	f.executions = NewExecutions(f.store, f.orchestrator)

	t.Cleanup(func() { f.orchestrator.AssertExpectations(t) })

	return f
}

func (f *fixture) seedApp(t *testing.T, owner string) *models.Application {
	t.Helper()

	app := &models.Application{ID: "a-1", Name: "app1", Owner: owner}
	require.NoError(t, f.store.Applications().Save(context.Background(), app))

	return app
}

func (f *fixture) seedInstance(t *testing.T, status models.InstanceStatus) *models.AppInstance {
	t.Helper()

	instance := &models.AppInstance{ID: "i-1", Name: "dep1", ApplicationID: "a-1", Owner: "alice", Status: status}
	require.NoError(t, f.store.Instances().Save(context.Background(), instance))

	return instance
}

func TestApplications_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orchestrator.On("UploadBlueprint", mock.Anything, "/srv/app1/blueprint.yaml", "app1").
		Return(&orchestrator.Blueprint{ID: "app1"}, nil)

	app, err := f.apps.Create(ctx, CreateApplicationRequest{Name: "app1", Blueprint: "/srv/app1/blueprint.yaml", Owner: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "app1", app.Name)

	got, err := f.apps.Get(ctx, app.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, app.ID, got.ID)

	_, err = f.apps.Get(ctx, app.ID, "bob")
	assert.True(t, persistence.IsAccessDenied(err))

	_, err = f.apps.Get(ctx, "missing", "alice")
	assert.True(t, persistence.IsNotFound(err))
}

func TestApplications_CreateUploadFailureStoresNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.orchestrator.On("UploadBlueprint", mock.Anything, "bp.yaml", "app1").
		Return(nil, &orchestrator.RemoteError{Op: "upload blueprint", StatusCode: 400, Message: "invalid"})

	_, err := f.apps.Create(ctx, CreateApplicationRequest{Name: "app1", Blueprint: "bp.yaml", Owner: "alice"})
	require.Error(t, err)
	assert.True(t, IsRemoteError(err))

	apps, err := f.apps.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestApplications_CreateSaveFailureDeletesBlueprint(t *testing.T) {
	f := newFixture(t)
	apps := NewApplications(failingStore{f.store}, f.orchestrator)

	f.orchestrator.On("UploadBlueprint", mock.Anything, "bp.yaml", "app1").Return(&orchestrator.Blueprint{ID: "app1"}, nil)
	f.orchestrator.On("DeleteBlueprint", mock.Anything, "app1").Return(nil).Once()

	_, err := apps.Create(context.Background(), CreateApplicationRequest{Name: "app1", Blueprint: "bp.yaml", Owner: "alice"})
	require.ErrorIs(t, err, errDisk)

	stored, err := f.store.Applications().List(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestApplications_CreateValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.apps.Create(context.Background(), CreateApplicationRequest{Name: "app1", Blueprint: "bp.yaml"})
	require.ErrorIs(t, err, ErrEmptyOwnerID)

	_, err = f.apps.Create(context.Background(), CreateApplicationRequest{Name: " ", Blueprint: "bp.yaml", Owner: "alice"})
	assert.True(t, IsValidationError(err))
}

func TestApplications_Remove(t *testing.T) {
	tests := []struct {
		name      string
		remoteErr error
		wantErr   bool
		rowKept   bool
	}{
		{"remote success", nil, false, false},
		{"remote already gone", &orchestrator.RemoteError{StatusCode: 404, Code: orchestrator.CodeNotFound}, false, false},
		{"remote failure keeps row", &orchestrator.RemoteError{StatusCode: 400, Code: "dependent_exists_error"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			app := f.seedApp(t, "alice")

			f.orchestrator.On("DeleteBlueprint", mock.Anything, "app1").Return(tt.remoteErr)

			err := f.apps.Remove(ctx, app.ID, "alice")
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			_, getErr := f.store.Applications().GetByID(ctx, app.ID)
			assert.Equal(t, tt.rowKept, getErr == nil)
		})
	}
}

func TestApplications_RemoveRequiresOwner(t *testing.T) {
	f := newFixture(t)
	app := f.seedApp(t, "alice")

	err := f.apps.Remove(context.Background(), app.ID, "bob")
	assert.True(t, persistence.IsAccessDenied(err))
	f.orchestrator.AssertNotCalled(t, "DeleteBlueprint", mock.Anything, mock.Anything)
}

func TestApplications_Inputs(t *testing.T) {
	f := newFixture(t)
	app := f.seedApp(t, "alice")

	f.orchestrator.On("GetBlueprint", mock.Anything, "app1").Return(blueprint(map[string]orchestrator.InputDefinition{
		"nodes": {Type: "integer", Default: []byte("2")},
		"hpc":   {Description: "primary hpc"},
	}), nil)

	inputs, err := f.apps.Inputs(context.Background(), app.ID)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "hpc", inputs[0].Name)
	assert.True(t, inputs[0].Required)
	assert.Equal(t, "nodes", inputs[1].Name)
	assert.Equal(t, float64(2), inputs[1].Default)
}

func TestInstances_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedApp(t, "alice")

	hpc, err := f.credentials.CreateHPC(ctx, &models.HPC{Name: "ft2", Owner: "alice", Host: "ft2", User: "u",
		Secrets: models.Secrets{Password: "pw"}, TimeZone: "Europe/Madrid"})
	require.NoError(t, err)

	f.orchestrator.On("GetBlueprint", mock.Anything, "app1").Return(blueprint(map[string]orchestrator.InputDefinition{
		"nodes":       {Type: "integer"},
		"primary_hpc": {Type: "dict"},
	}), nil)
	f.orchestrator.On("CreateDeployment", mock.Anything, "app1", "dep1", mock.MatchedBy(func(inputs map[string]any) bool {
		creds := inputs["primary_hpc"].(map[string]any)["credentials"].(map[string]any)
		return inputs["nodes"] == 2 && creds["password"] == "pw"
	})).Return(&orchestrator.Deployment{
		ID:          "dep1",
		Description: "two node run",
		Outputs:     map[string]any{"results_url": "https://hpc.example.org/out"},
	}, nil)

	instance, err := f.instances.Create(ctx, CreateInstanceRequest{
		ApplicationID: "a-1",
		Name:          "dep1",
		Inputs:        map[string]any{"nodes": 2},
		HPCInputs:     map[string]string{"primary_hpc": hpc.ID},
		Owner:         "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPrepared, instance.Status)

	stored, err := f.store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Inputs, "primary_hpc")
	assert.Equal(t, hpc.ID, stored.HPCInputs["primary_hpc"])
	assert.Equal(t, "https://hpc.example.org/out", stored.Outputs["results_url"])
	assert.Equal(t, "two node run", stored.Description)
}

func TestInstances_CreateRejectsInvalidInputs(t *testing.T) {
	f := newFixture(t)
	f.seedApp(t, "alice")

	f.orchestrator.On("GetBlueprint", mock.Anything, "app1").Return(blueprint(map[string]orchestrator.InputDefinition{
		"nodes": {Type: "integer"},
	}), nil)

	_, err := f.instances.Create(context.Background(), CreateInstanceRequest{
		ApplicationID: "a-1", Name: "dep1", Owner: "alice",
		Inputs: map[string]any{"nodes": "many", "unknown": true},
	})
	require.ErrorIs(t, err, ErrInvalidInputs)
	assert.True(t, IsValidationError(err))
	f.orchestrator.AssertNotCalled(t, "CreateDeployment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInstances_CreateRejectsForeignHPC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedApp(t, "alice")

	hpc, err := f.credentials.CreateHPC(ctx, &models.HPC{Name: "ft2", Owner: "bob", Host: "ft2", User: "u", TimeZone: "UTC"})
	require.NoError(t, err)

	_, err = f.instances.Create(ctx, CreateInstanceRequest{
		ApplicationID: "a-1", Name: "dep1", Owner: "alice",
		HPCInputs: map[string]string{"primary_hpc": hpc.ID},
	})
	assert.True(t, persistence.IsAccessDenied(err))
}

func TestInstances_CreateRetriesPendingEnvironment(t *testing.T) {
	f := newFixture(t)
	f.seedApp(t, "alice")

	pending := &orchestrator.RemoteError{StatusCode: 400, Code: orchestrator.CodeEnvironmentCreationPending}
	f.orchestrator.On("GetBlueprint", mock.Anything, "app1").Return(blueprint(nil), nil)
	f.orchestrator.On("CreateDeployment", mock.Anything, "app1", "dep1", mock.Anything).Return(nil, pending).Twice()
	f.orchestrator.On("CreateDeployment", mock.Anything, "app1", "dep1", mock.Anything).Return(&orchestrator.Deployment{ID: "dep1"}, nil).Once()

	_, err := f.instances.Create(context.Background(), CreateInstanceRequest{ApplicationID: "a-1", Name: "dep1", Owner: "alice"})
	require.NoError(t, err)
	f.orchestrator.AssertNumberOfCalls(t, "CreateDeployment", 3)
}

func TestInstances_CreateSaveFailureDestroysDeployment(t *testing.T) {
	f := newFixture(t)
	f.seedApp(t, "alice")
	instances := NewInstances(failingStore{f.store}, f.orchestrator, f.credentials, f.locker, testRetry)

	f.orchestrator.On("GetBlueprint", mock.Anything, "app1").Return(blueprint(nil), nil)
	f.orchestrator.On("CreateDeployment", mock.Anything, "app1", "dep1", mock.Anything).Return(&orchestrator.Deployment{ID: "dep1"}, nil)
	f.orchestrator.On("DeleteDeployment", mock.Anything, "dep1", true).Return(nil).Once()

	_, err := instances.Create(context.Background(), CreateInstanceRequest{ApplicationID: "a-1", Name: "dep1", Owner: "alice"})
	require.ErrorIs(t, err, errDisk)
}

func TestInstances_Events(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	instance := f.seedInstance(t, models.StatusStarted)

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, f.store.Logs().Append(ctx, &models.InstanceLog{InstanceID: instance.ID, Message: msg}))
	}

	events, err := f.instances.Events(ctx, instance.ID, 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, events.Logs)
	assert.Equal(t, 3, events.Last)
	assert.Equal(t, models.StatusStarted, events.Status)
	assert.False(t, events.Finished)

	events, err = f.instances.Events(ctx, instance.ID, events.Last, "alice")
	require.NoError(t, err)
	assert.Empty(t, events.Logs)
	assert.Equal(t, 3, events.Last)

	_, err = f.instances.Events(ctx, instance.ID, 0, "bob")
	assert.True(t, persistence.IsAccessDenied(err))

	_, err = f.instances.Events(ctx, instance.ID, -1, "alice")
	assert.True(t, IsValidationError(err))
}

func TestInstances_Remove(t *testing.T) {
	remoteFailure := &orchestrator.RemoteError{StatusCode: 500, Message: "boom"}

	tests := []struct {
		name      string
		status    models.InstanceStatus
		remoteErr error
		wantErr   bool
		rowKept   bool
	}{
		{"destroyed", models.StatusStarted, nil, false, false},
		{"already absent", models.StatusStarted, &orchestrator.RemoteError{StatusCode: 404}, false, false},
		{"failure while executing keeps row", models.StatusStarted, remoteFailure, true, true},
		{"failure when finished deletes row", models.StatusFailed, remoteFailure, false, false},
		{"failure when prepared deletes row", models.StatusPrepared, remoteFailure, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			instance := f.seedInstance(t, tt.status)

			f.orchestrator.On("DeleteDeployment", mock.Anything, "dep1", true).Return(tt.remoteErr)

			err := f.instances.Remove(ctx, instance.ID, "alice", true)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			_, getErr := f.store.Instances().GetByID(ctx, instance.ID)
			assert.Equal(t, tt.rowKept, getErr == nil)
		})
	}
}

func TestInstances_RemoveWhileRunning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	instance := f.seedInstance(t, models.StatusStarted)

	lease, err := f.locker.TryAcquire(ctx, lock.InstanceKey(instance.ID))
	require.NoError(t, err)
	defer lease.Release(ctx)

	err = f.instances.Remove(ctx, instance.ID, "alice", false)
	require.ErrorIs(t, err, ErrInstanceBusy)
	assert.True(t, IsConflictError(err))
}

func TestExecutions_Start(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	instance := f.seedInstance(t, models.StatusStarted)

	f.orchestrator.On("StartExecution", mock.Anything, "dep1", models.WorkflowInstall, mock.Anything, false).
		Return(&orchestrator.Execution{ID: "ext-1", Status: "pending"}, nil).Once()
	f.orchestrator.On("StartExecution", mock.Anything, "dep1", models.WorkflowRunJobs, mock.Anything, false).
		Return(nil, nil).Once()

	execution, err := f.executions.Start(ctx, instance, models.WorkflowInstall, "alice", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", execution.ExternalID)

	listed, err := f.executions.List(ctx, instance.ID, "alice")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	_, err = f.executions.Start(ctx, instance, models.WorkflowRunJobs, "alice", false, nil)
	require.ErrorIs(t, err, ErrExecutionNotCreated)

	_, err = f.executions.Start(ctx, instance, models.WorkflowRunJobs, "bob", false, nil)
	assert.True(t, persistence.IsAccessDenied(err))
}

func TestCredentials_SanitizedAndOwned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tunnel, err := f.credentials.CreateTunnel(ctx, &models.Tunnel{Name: "gw", Owner: "alice", Host: "gw", User: "u",
		Secrets: models.Secrets{PrivateKey: "KEY"}})
	require.NoError(t, err)
	assert.Empty(t, tunnel.Secrets.PrivateKey)

	_, err = f.credentials.CreateHPC(ctx, &models.HPC{Name: "h", Owner: "bob", Host: "h", User: "u", TimeZone: "UTC", TunnelID: tunnel.ID})
	assert.True(t, persistence.IsAccessDenied(err))

	hpc, err := f.credentials.CreateHPC(ctx, &models.HPC{Name: "h", Owner: "alice", Host: "h", User: "u", TimeZone: "UTC",
		TunnelID: tunnel.ID, Secrets: models.Secrets{Password: "pw"}})
	require.NoError(t, err)
	assert.Equal(t, models.WorkloadManagerSlurm, hpc.Manager)
	assert.Empty(t, hpc.Secrets.Password)
	assert.Empty(t, hpc.Tunnel.Secrets.PrivateKey)

	listed, err := f.credentials.ListHPCs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].Secrets.Password)

	resolved, err := f.credentials.ResolveHPC(ctx, hpc.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pw", resolved.Secrets.Password)

	assert.True(t, persistence.IsAccessDenied(f.credentials.RemoveTunnel(ctx, tunnel.ID, "bob")))
	require.NoError(t, f.credentials.RemoveTunnel(ctx, tunnel.ID, "alice"))

	_, err = f.credentials.GetHPC(ctx, hpc.ID, "alice")
	assert.True(t, persistence.IsNotFound(err))
}

func TestCredentials_DataCatalogueKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.credentials.CreateDataCatalogueKey(ctx, " ", "code")
	require.ErrorIs(t, err, ErrEmptyOwnerID)

	key, err := f.credentials.CreateDataCatalogueKey(ctx, "alice", "CKAN-1")
	require.NoError(t, err)
	assert.Equal(t, "CKAN-1", key.Code)

	_, err = f.credentials.CreateDataCatalogueKey(ctx, "alice", "CKAN-2")
	assert.True(t, persistence.IsAlreadyExists(err))

	updated, err := f.credentials.UpdateDataCatalogueKey(ctx, "alice", "CKAN-2")
	require.NoError(t, err)
	assert.Equal(t, "CKAN-2", updated.Code)

	_, err = f.credentials.GetDataCatalogueKey(ctx, "bob")
	assert.True(t, persistence.IsNotFound(err))

	require.NoError(t, f.credentials.RemoveDataCatalogueKey(ctx, "alice"))
	assert.True(t, persistence.IsNotFound(f.credentials.RemoveDataCatalogueKey(ctx, "alice")))
}
