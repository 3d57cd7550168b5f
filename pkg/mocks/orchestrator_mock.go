package mocks

import (
	"context"

	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/stretchr/testify/mock"
)

// MockOrchestrator is a mock implementation of orchestrator.Client.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) UploadBlueprint(ctx context.Context, source, blueprintID string) (*orchestrator.Blueprint, error) {
	args := m.Called(ctx, source, blueprintID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.Blueprint), args.Error(1)
}

func (m *MockOrchestrator) GetBlueprint(ctx context.Context, blueprintID string) (*orchestrator.Blueprint, error) {
	args := m.Called(ctx, blueprintID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.Blueprint), args.Error(1)
}

func (m *MockOrchestrator) DeleteBlueprint(ctx context.Context, blueprintID string) error {
	args := m.Called(ctx, blueprintID)

	return args.Error(0)
}

func (m *MockOrchestrator) CreateDeployment(ctx context.Context, blueprintID, deploymentID string, inputs map[string]any) (*orchestrator.Deployment, error) {
	args := m.Called(ctx, blueprintID, deploymentID, inputs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.Deployment), args.Error(1)
}

func (m *MockOrchestrator) DeleteDeployment(ctx context.Context, deploymentID string, force bool) error {
	args := m.Called(ctx, deploymentID, force)

	return args.Error(0)
}

func (m *MockOrchestrator) StartExecution(ctx context.Context, deploymentID, workflow string, params map[string]any, force bool) (*orchestrator.Execution, error) {
	args := m.Called(ctx, deploymentID, workflow, params, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.Execution), args.Error(1)
}

func (m *MockOrchestrator) GetExecution(ctx context.Context, executionID string) (*orchestrator.Execution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.Execution), args.Error(1)
}

func (m *MockOrchestrator) ListEvents(ctx context.Context, executionID string, offset, size int) (*orchestrator.EventPage, error) {
	args := m.Called(ctx, executionID, offset, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*orchestrator.EventPage), args.Error(1)
}
