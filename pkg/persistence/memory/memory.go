// Package memory provides an in-process persistence implementation used by
// tests and single-node development setups.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
)

type store struct {
	mu sync.RWMutex

	applications map[string]*models.Application
	instances    map[string]*models.AppInstance
	executions   map[string]*models.WorkflowExecution
	logs         map[string][]*models.InstanceLog
	tunnels      map[string]*models.Tunnel
	hpcs         map[string]*models.HPC
	keys         map[string]*models.DataCatalogueKey
	logSeq       int64
}

// Persistence keeps every record in memory.
type Persistence struct {
	s *store
}

func NewPersistence() *Persistence {
	return &Persistence{s: &store{
		applications: map[string]*models.Application{},
		instances:    map[string]*models.AppInstance{},
		executions:   map[string]*models.WorkflowExecution{},
		logs:         map[string][]*models.InstanceLog{},
		tunnels:      map[string]*models.Tunnel{},
		hpcs:         map[string]*models.HPC{},
		keys:         map[string]*models.DataCatalogueKey{},
	}}
}

func (p *Persistence) Applications() persistence.ApplicationRepository {
	return &applicationRepository{p.s}
}

func (p *Persistence) Instances() persistence.InstanceRepository { return &instanceRepository{p.s} }

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return &executionRepository{p.s}
}

func (p *Persistence) Logs() persistence.LogRepository { return &logRepository{p.s} }

func (p *Persistence) Credentials() persistence.CredentialRepository {
	return &credentialRepository{p.s}
}

func (p *Persistence) HealthCheck(context.Context) error { return nil }

func (p *Persistence) Close(context.Context) error { return nil }

type applicationRepository struct{ s *store }

func (r *applicationRepository) Save(_ context.Context, app *models.Application) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.applications {
		if existing.Name == app.Name && existing.ID != app.ID {
			return persistence.NewEntityError("Save", persistence.EntityApplication, app.Name, persistence.ErrAlreadyExists)
		}
	}

	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	stored := *app
	r.s.applications[app.ID] = &stored

	return nil
}

func (r *applicationRepository) GetByID(_ context.Context, id string) (*models.Application, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	app, ok := r.s.applications[id]
	if !ok {
		return nil, persistence.NotFound("GetByID", persistence.EntityApplication, id)
	}
	result := *app

	return &result, nil
}

func (r *applicationRepository) List(_ context.Context, owner string) ([]*models.Application, error) {
	return r.filter(func(a *models.Application) bool { return a.Owner == owner }), nil
}

func (r *applicationRepository) ListByMarketplace(_ context.Context, ids []string) ([]*models.Application, error) {
	return r.filter(func(a *models.Application) bool { return slices.Contains(ids, a.MarketplaceID) }), nil
}

func (r *applicationRepository) filter(keep func(*models.Application) bool) []*models.Application {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.Application, 0)
	for _, app := range r.s.applications {
		if keep(app) {
			c := *app
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result
}

func (r *applicationRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.applications[id]; !ok {
		return persistence.NotFound("Delete", persistence.EntityApplication, id)
	}
	delete(r.s.applications, id)

	return nil
}

type instanceRepository struct{ s *store }

func cloneInstance(i *models.AppInstance) *models.AppInstance {
	c := *i
	c.Inputs = maps.Clone(i.Inputs)
	c.Outputs = maps.Clone(i.Outputs)
	c.HPCInputs = maps.Clone(i.HPCInputs)

	return &c
}

func (r *instanceRepository) Save(_ context.Context, instance *models.AppInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.instances {
		if existing.Name == instance.Name && existing.ID != instance.ID {
			return persistence.NewEntityError("Save", persistence.EntityInstance, instance.Name, persistence.ErrAlreadyExists)
		}
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	r.s.instances[instance.ID] = cloneInstance(instance)

	return nil
}

func (r *instanceRepository) GetByID(_ context.Context, id string) (*models.AppInstance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	instance, ok := r.s.instances[id]
	if !ok {
		return nil, persistence.NotFound("GetByID", persistence.EntityInstance, id)
	}

	return cloneInstance(instance), nil
}

func (r *instanceRepository) List(_ context.Context, owner string) ([]*models.AppInstance, error) {
	return r.filter(func(i *models.AppInstance) bool { return i.Owner == owner }), nil
}

func (r *instanceRepository) ListByStatus(_ context.Context, statuses ...models.InstanceStatus) ([]*models.AppInstance, error) {
	return r.filter(func(i *models.AppInstance) bool { return slices.Contains(statuses, i.Status) }), nil
}

func (r *instanceRepository) filter(keep func(*models.AppInstance) bool) []*models.AppInstance {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.AppInstance, 0)
	for _, instance := range r.s.instances {
		if keep(instance) {
			result = append(result, cloneInstance(instance))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result
}

func (r *instanceRepository) UpdateStatus(_ context.Context, id string, status models.InstanceStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	instance, ok := r.s.instances[id]
	if !ok {
		return persistence.NotFound("UpdateStatus", persistence.EntityInstance, id)
	}
	instance.Status = status
	instance.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *instanceRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.instances[id]; !ok {
		return persistence.NotFound("Delete", persistence.EntityInstance, id)
	}
	delete(r.s.instances, id)
	delete(r.s.logs, id)
	for execID, exec := range r.s.executions {
		if exec.InstanceID == id {
			delete(r.s.executions, execID)
		}
	}

	return nil
}

type executionRepository struct{ s *store }

func (r *executionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.instances[execution.InstanceID]; !ok {
		return persistence.NotFound("Save", persistence.EntityInstance, execution.InstanceID)
	}
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}
	c := *execution
	r.s.executions[execution.ID] = &c

	return nil
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	execution, ok := r.s.executions[id]
	if !ok {
		return nil, persistence.NotFound("GetByID", persistence.EntityExecution, id)
	}
	c := *execution

	return &c, nil
}

func (r *executionRepository) ListByInstance(_ context.Context, instanceID string) ([]*models.WorkflowExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.WorkflowExecution, 0)
	for _, execution := range r.s.executions {
		if execution.InstanceID == instanceID {
			c := *execution
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

func (r *executionRepository) DeleteByInstance(_ context.Context, instanceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, execution := range r.s.executions {
		if execution.InstanceID == instanceID {
			delete(r.s.executions, id)
		}
	}

	return nil
}

type logRepository struct{ s *store }

func (r *logRepository) Append(_ context.Context, entry *models.InstanceLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.instances[entry.InstanceID]; !ok {
		return persistence.NotFound("Append", persistence.EntityInstance, entry.InstanceID)
	}

	r.s.logSeq++
	entry.ID = r.s.logSeq
	if entry.Generated.IsZero() {
		entry.Generated = time.Now().UTC()
	}
	c := *entry
	r.s.logs[entry.InstanceID] = append(r.s.logs[entry.InstanceID], &c)

	return nil
}

func (r *logRepository) List(_ context.Context, instanceID string, offset int) ([]*models.InstanceLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	lines := r.s.logs[instanceID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return []*models.InstanceLog{}, nil
	}

	result := make([]*models.InstanceLog, 0, len(lines)-offset)
	for _, line := range lines[offset:] {
		c := *line
		result = append(result, &c)
	}

	return result, nil
}

func (r *logRepository) DeleteByInstance(_ context.Context, instanceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.logs, instanceID)

	return nil
}

type credentialRepository struct{ s *store }

func (r *credentialRepository) SaveTunnel(_ context.Context, tunnel *models.Tunnel) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if tunnel.CreatedAt.IsZero() {
		tunnel.CreatedAt = time.Now().UTC()
	}
	c := *tunnel
	r.s.tunnels[tunnel.ID] = &c

	return nil
}

func (r *credentialRepository) GetTunnel(_ context.Context, id string) (*models.Tunnel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	tunnel, ok := r.s.tunnels[id]
	if !ok {
		return nil, persistence.NotFound("GetTunnel", persistence.EntityTunnel, id)
	}
	c := *tunnel

	return &c, nil
}

func (r *credentialRepository) ListTunnels(_ context.Context, owner string) ([]*models.Tunnel, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.Tunnel, 0)
	for _, tunnel := range r.s.tunnels {
		if tunnel.Owner == owner {
			c := *tunnel
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

func (r *credentialRepository) DeleteTunnel(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tunnels[id]; !ok {
		return persistence.NotFound("DeleteTunnel", persistence.EntityTunnel, id)
	}
	delete(r.s.tunnels, id)
	for hpcID, hpc := range r.s.hpcs {
		if hpc.TunnelID == id {
			delete(r.s.hpcs, hpcID)
		}
	}

	return nil
}

func (r *credentialRepository) SaveHPC(_ context.Context, hpc *models.HPC) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if hpc.TunnelID != "" {
		if _, ok := r.s.tunnels[hpc.TunnelID]; !ok {
			return persistence.NotFound("SaveHPC", persistence.EntityTunnel, hpc.TunnelID)
		}
	}
	if hpc.CreatedAt.IsZero() {
		hpc.CreatedAt = time.Now().UTC()
	}
	c := *hpc
	c.Tunnel = nil
	r.s.hpcs[hpc.ID] = &c

	return nil
}

func (r *credentialRepository) GetHPC(_ context.Context, id string) (*models.HPC, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	hpc, ok := r.s.hpcs[id]
	if !ok {
		return nil, persistence.NotFound("GetHPC", persistence.EntityHPC, id)
	}

	return r.withTunnel(hpc), nil
}

func (r *credentialRepository) ListHPCs(_ context.Context, owner string) ([]*models.HPC, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*models.HPC, 0)
	for _, hpc := range r.s.hpcs {
		if hpc.Owner == owner {
			result = append(result, r.withTunnel(hpc))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	return result, nil
}

func (r *credentialRepository) withTunnel(hpc *models.HPC) *models.HPC {
	c := *hpc
	if tunnel, ok := r.s.tunnels[hpc.TunnelID]; ok {
		t := *tunnel
		c.Tunnel = &t
	}

	return &c
}

func (r *credentialRepository) DeleteHPC(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.hpcs[id]; !ok {
		return persistence.NotFound("DeleteHPC", persistence.EntityHPC, id)
	}
	delete(r.s.hpcs, id)

	return nil
}

func (r *credentialRepository) SaveDataCatalogueKey(_ context.Context, key *models.DataCatalogueKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.keys[key.Owner]; ok {
		return persistence.NewEntityError("SaveDataCatalogueKey", persistence.EntityCatalogue, key.Owner, persistence.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now
	c := *key
	r.s.keys[key.Owner] = &c

	return nil
}

func (r *credentialRepository) GetDataCatalogueKey(_ context.Context, owner string) (*models.DataCatalogueKey, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	key, ok := r.s.keys[owner]
	if !ok {
		return nil, persistence.NotFound("GetDataCatalogueKey", persistence.EntityCatalogue, owner)
	}
	c := *key

	return &c, nil
}

func (r *credentialRepository) UpdateDataCatalogueKey(_ context.Context, key *models.DataCatalogueKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.keys[key.Owner]
	if !ok {
		return persistence.NotFound("UpdateDataCatalogueKey", persistence.EntityCatalogue, key.Owner)
	}

	key.CreatedAt = existing.CreatedAt
	key.UpdatedAt = time.Now().UTC()
	c := *key
	r.s.keys[key.Owner] = &c

	return nil
}

func (r *credentialRepository) DeleteDataCatalogueKey(_ context.Context, owner string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.keys[owner]; !ok {
		return persistence.NotFound("DeleteDataCatalogueKey", persistence.EntityCatalogue, owner)
	}
	delete(r.s.keys, owner)

	return nil
}
