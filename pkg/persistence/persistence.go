// Package persistence defines the storage contracts for applications,
// instances, their executions and logs, and HPC credentials.
package persistence

import (
	"context"

	"github.com/mso4sc/experiments/pkg/models"
)

type Persistence interface {
	Applications() ApplicationRepository
	Instances() InstanceRepository
	Executions() ExecutionRepository
	Logs() LogRepository
	Credentials() CredentialRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type ApplicationRepository interface {
	// Save inserts a new application. A taken name yields ErrAlreadyExists.
	Save(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, owner string) ([]*models.Application, error)
	ListByMarketplace(ctx context.Context, marketplaceIDs []string) ([]*models.Application, error)
	Delete(ctx context.Context, id string) error
}

type InstanceRepository interface {
	// Save inserts a new instance. A taken name yields ErrAlreadyExists.
	Save(ctx context.Context, instance *models.AppInstance) error
	GetByID(ctx context.Context, id string) (*models.AppInstance, error)
	List(ctx context.Context, owner string) ([]*models.AppInstance, error)
	ListByStatus(ctx context.Context, statuses ...models.InstanceStatus) ([]*models.AppInstance, error)
	UpdateStatus(ctx context.Context, id string, status models.InstanceStatus) error
	// Delete removes the instance together with its executions and logs.
	Delete(ctx context.Context, id string) error
}

type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowExecution, error)
	DeleteByInstance(ctx context.Context, instanceID string) error
}

type LogRepository interface {
	// Append stores a new line and assigns its ID.
	Append(ctx context.Context, entry *models.InstanceLog) error
	// List returns the lines of an instance in append order, skipping the
	// first offset of them.
	List(ctx context.Context, instanceID string, offset int) ([]*models.InstanceLog, error)
	DeleteByInstance(ctx context.Context, instanceID string) error
}

type CredentialRepository interface {
	SaveTunnel(ctx context.Context, tunnel *models.Tunnel) error
	GetTunnel(ctx context.Context, id string) (*models.Tunnel, error)
	ListTunnels(ctx context.Context, owner string) ([]*models.Tunnel, error)
	// DeleteTunnel removes the tunnel and every HPC reaching through it.
	DeleteTunnel(ctx context.Context, id string) error

	SaveHPC(ctx context.Context, hpc *models.HPC) error
	// GetHPC returns the HPC with its tunnel loaded.
	GetHPC(ctx context.Context, id string) (*models.HPC, error)
	ListHPCs(ctx context.Context, owner string) ([]*models.HPC, error)
	DeleteHPC(ctx context.Context, id string) error

	// SaveDataCatalogueKey inserts the owner's key. A second key for the
	// same owner yields ErrAlreadyExists.
	SaveDataCatalogueKey(ctx context.Context, key *models.DataCatalogueKey) error
	GetDataCatalogueKey(ctx context.Context, owner string) (*models.DataCatalogueKey, error)
	UpdateDataCatalogueKey(ctx context.Context, key *models.DataCatalogueKey) error
	DeleteDataCatalogueKey(ctx context.Context, owner string) error
}
