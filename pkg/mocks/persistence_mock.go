package mocks

import (
	"context"

	"github.com/mso4sc/experiments/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockInstanceRepository is a mock implementation of
// persistence.InstanceRepository interface.
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) Save(ctx context.Context, instance *models.AppInstance) error {
	args := m.Called(ctx, instance)

	return args.Error(0)
}

func (m *MockInstanceRepository) GetByID(ctx context.Context, id string) (*models.AppInstance, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AppInstance), args.Error(1)
}

func (m *MockInstanceRepository) List(ctx context.Context, owner string) ([]*models.AppInstance, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AppInstance), args.Error(1)
}

func (m *MockInstanceRepository) ListByStatus(ctx context.Context, statuses ...models.InstanceStatus) ([]*models.AppInstance, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.AppInstance), args.Error(1)
}

func (m *MockInstanceRepository) UpdateStatus(ctx context.Context, id string, status models.InstanceStatus) error {
	args := m.Called(ctx, id, status)

	return args.Error(0)
}

func (m *MockInstanceRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}
