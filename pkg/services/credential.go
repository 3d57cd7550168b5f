package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mso4sc/experiments/pkg/log"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
)

// Credentials manages tunnels and HPCs. Everything it returns to callers is
// stripped of secrets.
type Credentials struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewCredentials(p persistence.Persistence) *Credentials {
	return &Credentials{persistence: p, logger: log.WithModule("credentials")}
}

func (c *Credentials) CreateTunnel(ctx context.Context, tunnel *models.Tunnel) (*models.Tunnel, error) {
	if strings.TrimSpace(tunnel.Owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	tunnel.ID = uuid.NewString()
	if err := c.persistence.Credentials().SaveTunnel(ctx, tunnel); err != nil {
		return nil, fmt.Errorf("save tunnel: %w", err)
	}

	public := tunnel.Public()

	return &public, nil
}

func (c *Credentials) getTunnel(ctx context.Context, id, owner string) (*models.Tunnel, error) {
	tunnel, err := c.persistence.Credentials().GetTunnel(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := persistence.CheckOwner("GetTunnel", persistence.EntityTunnel, id, owner, tunnel.Owner); err != nil {
		return nil, err
	}

	return tunnel, nil
}

func (c *Credentials) GetTunnel(ctx context.Context, id, owner string) (*models.Tunnel, error) {
	tunnel, err := c.getTunnel(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	public := tunnel.Public()

	return &public, nil
}

func (c *Credentials) ListTunnels(ctx context.Context, owner string) ([]*models.Tunnel, error) {
	tunnels, err := c.persistence.Credentials().ListTunnels(ctx, owner)
	if err != nil {
		return nil, err
	}

	for i, t := range tunnels {
		public := t.Public()
		tunnels[i] = &public
	}

	return tunnels, nil
}

// RemoveTunnel deletes the tunnel and the HPCs that use it.
func (c *Credentials) RemoveTunnel(ctx context.Context, id, owner string) error {
	if _, err := c.getTunnel(ctx, id, owner); err != nil {
		return err
	}

	return c.persistence.Credentials().DeleteTunnel(ctx, id)
}

// CreateHPC stores an HPC. A referenced tunnel must belong to the same owner.
func (c *Credentials) CreateHPC(ctx context.Context, hpc *models.HPC) (*models.HPC, error) {
	if strings.TrimSpace(hpc.Owner) == "" {
		return nil, ErrEmptyOwnerID
	}
	if hpc.Manager == "" {
		hpc.Manager = models.WorkloadManagerSlurm
	}

	if hpc.TunnelID != "" {
		tunnel, err := c.getTunnel(ctx, hpc.TunnelID, hpc.Owner)
		if err != nil {
			return nil, fmt.Errorf("tunnel for hpc: %w", err)
		}
		hpc.Tunnel = tunnel
	}

	hpc.ID = uuid.NewString()
	if err := c.persistence.Credentials().SaveHPC(ctx, hpc); err != nil {
		return nil, fmt.Errorf("save hpc: %w", err)
	}

	public := hpc.Public()

	return &public, nil
}

// ResolveHPC returns the HPC with its secrets. It never leaves the process.
func (c *Credentials) ResolveHPC(ctx context.Context, id, owner string) (*models.HPC, error) {
	hpc, err := c.persistence.Credentials().GetHPC(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := persistence.CheckOwner("GetHPC", persistence.EntityHPC, id, owner, hpc.Owner); err != nil {
		return nil, err
	}

	return hpc, nil
}

func (c *Credentials) GetHPC(ctx context.Context, id, owner string) (*models.HPC, error) {
	hpc, err := c.ResolveHPC(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	public := hpc.Public()

	return &public, nil
}

func (c *Credentials) ListHPCs(ctx context.Context, owner string) ([]*models.HPC, error) {
	hpcs, err := c.persistence.Credentials().ListHPCs(ctx, owner)
	if err != nil {
		return nil, err
	}

	for i, h := range hpcs {
		public := h.Public()
		hpcs[i] = &public
	}

	return hpcs, nil
}

func (c *Credentials) RemoveHPC(ctx context.Context, id, owner string) error {
	if _, err := c.ResolveHPC(ctx, id, owner); err != nil {
		return err
	}

	return c.persistence.Credentials().DeleteHPC(ctx, id)
}

// GetDataCatalogueKey returns the owner's data catalogue key, code included.
func (c *Credentials) GetDataCatalogueKey(ctx context.Context, owner string) (*models.DataCatalogueKey, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	return c.persistence.Credentials().GetDataCatalogueKey(ctx, owner)
}

// CreateDataCatalogueKey stores the owner's key. An owner holds at most one.
func (c *Credentials) CreateDataCatalogueKey(ctx context.Context, owner, code string) (*models.DataCatalogueKey, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	key := &models.DataCatalogueKey{Owner: owner, Code: code}
	if err := c.persistence.Credentials().SaveDataCatalogueKey(ctx, key); err != nil {
		return nil, fmt.Errorf("save data catalogue key: %w", err)
	}

	return key, nil
}

func (c *Credentials) UpdateDataCatalogueKey(ctx context.Context, owner, code string) (*models.DataCatalogueKey, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrEmptyOwnerID
	}

	key := &models.DataCatalogueKey{Owner: owner, Code: code}
	if err := c.persistence.Credentials().UpdateDataCatalogueKey(ctx, key); err != nil {
		return nil, err
	}

	return c.persistence.Credentials().GetDataCatalogueKey(ctx, owner)
}

func (c *Credentials) RemoveDataCatalogueKey(ctx context.Context, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return ErrEmptyOwnerID
	}

	return c.persistence.Credentials().DeleteDataCatalogueKey(ctx, owner)
}
