package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mso4sc/experiments/pkg/mocks"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fastPolicy = orchestrator.RetryPolicy{Retries: 3, Interval: time.Millisecond}

func pendingErr() error {
	return &orchestrator.RemoteError{
		Op:         "create deployment",
		StatusCode: 400,
		Code:       orchestrator.CodeEnvironmentCreationPending,
		Message:    "environment is being created",
	}
}

func TestCreateDeploymentWithRetry_RetriesTransientErrors(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{"no failures", 0, 1, false},
		{"one failure", 1, 2, false},
		{"three failures", 3, 4, false},
		{"five failures", 5, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mocks.MockOrchestrator{}
			if tt.failures > 0 {
				client.On("CreateDeployment", mock.Anything, "bp", "dep", mock.Anything).
					Return(nil, pendingErr()).Times(tt.failures)
			}
			client.On("CreateDeployment", mock.Anything, "bp", "dep", mock.Anything).
				Return(&orchestrator.Deployment{ID: "dep"}, nil).Maybe()

			dep, err := orchestrator.CreateDeploymentWithRetry(context.Background(), client, fastPolicy, "bp", "dep", nil)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, orchestrator.IsTransient(err))
				assert.Nil(t, dep)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "dep", dep.ID)
			}
			client.AssertNumberOfCalls(t, "CreateDeployment", tt.wantCalls)
		})
	}
}

func TestCreateDeploymentWithRetry_FatalErrorStopsImmediately(t *testing.T) {
	client := &mocks.MockOrchestrator{}
	fatal := &orchestrator.RemoteError{Op: "create deployment", StatusCode: 400, Code: "invalid_input_error"}
	client.On("CreateDeployment", mock.Anything, "bp", "dep", mock.Anything).Return(nil, fatal)

	_, err := orchestrator.CreateDeploymentWithRetry(context.Background(), client, fastPolicy, "bp", "dep", nil)

	require.ErrorIs(t, err, fatal)
	client.AssertNumberOfCalls(t, "CreateDeployment", 1)
}

func TestCreateDeploymentWithRetry_ContextCancelled(t *testing.T) {
	client := &mocks.MockOrchestrator{}
	client.On("CreateDeployment", mock.Anything, "bp", "dep", mock.Anything).Return(nil, pendingErr())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := orchestrator.CreateDeploymentWithRetry(ctx, client, orchestrator.RetryPolicy{Retries: 3, Interval: time.Hour}, "bp", "dep", nil)

	assert.True(t, errors.Is(err, context.Canceled))
	client.AssertNumberOfCalls(t, "CreateDeployment", 1)
}
