package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/secrets"
)

// CredentialRepository stores tunnels, HPCs and data catalogue keys. Secret
// columns are sealed with the configured box.
type CredentialRepository struct {
	db     *sql.DB
	logger *slog.Logger
	box    *secrets.Box
}

func NewCredentialRepository(db *sql.DB, logger *slog.Logger, box *secrets.Box) *CredentialRepository {
	return &CredentialRepository{db: db, logger: logger, box: box}
}

func (r *CredentialRepository) seal(s models.Secrets) (models.Secrets, error) {
	var (
		sealed models.Secrets
		err    error
	)

	if sealed.PrivateKey, err = r.box.Encrypt(s.PrivateKey); err != nil {
		return sealed, err
	}
	if sealed.PrivateKeyPassword, err = r.box.Encrypt(s.PrivateKeyPassword); err != nil {
		return sealed, err
	}
	if sealed.Password, err = r.box.Encrypt(s.Password); err != nil {
		return sealed, err
	}

	return sealed, nil
}

func (r *CredentialRepository) open(s *models.Secrets) error {
	var err error

	if s.PrivateKey, err = r.box.Decrypt(s.PrivateKey); err != nil {
		return err
	}
	if s.PrivateKeyPassword, err = r.box.Decrypt(s.PrivateKeyPassword); err != nil {
		return err
	}
	if s.Password, err = r.box.Decrypt(s.Password); err != nil {
		return err
	}

	return nil
}

func (r *CredentialRepository) SaveTunnel(ctx context.Context, tunnel *models.Tunnel) error {
	sealed, err := r.seal(tunnel.Secrets)
	if err != nil {
		return fmt.Errorf("failed to seal tunnel secrets: %w", err)
	}
	if tunnel.CreatedAt.IsZero() {
		tunnel.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tunnels (id, name, owner, host, username, private_key, private_key_password, password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		tunnel.ID, tunnel.Name, tunnel.Owner, tunnel.Host, tunnel.User,
		sealed.PrivateKey, sealed.PrivateKeyPassword, sealed.Password,
		tunnel.CreatedAt,
	)
	if err != nil {
		return classify("SaveTunnel", persistence.EntityTunnel, tunnel.ID, err)
	}

	return nil
}

const tunnelColumns = `id, name, owner, host, username, private_key, private_key_password, password, created_at`

func (r *CredentialRepository) GetTunnel(ctx context.Context, id string) (*models.Tunnel, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+tunnelColumns+` FROM tunnels WHERE id = $1`, id)

	tunnel, err := r.scanTunnel(row)
	if err != nil {
		return nil, classify("GetTunnel", persistence.EntityTunnel, id, err)
	}

	return tunnel, nil
}

func (r *CredentialRepository) ListTunnels(ctx context.Context, owner string) ([]*models.Tunnel, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tunnelColumns+` FROM tunnels WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, classify("ListTunnels", persistence.EntityTunnel, "", err)
	}
	defer rows.Close()

	tunnels := make([]*models.Tunnel, 0)
	for rows.Next() {
		tunnel, err := r.scanTunnel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tunnel: %w", err)
		}
		tunnels = append(tunnels, tunnel)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("ListTunnels", persistence.EntityTunnel, "", err)
	}

	return tunnels, nil
}

func (r *CredentialRepository) DeleteTunnel(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tunnels WHERE id = $1`, id)
	if err != nil {
		return classify("DeleteTunnel", persistence.EntityTunnel, id, err)
	}

	return expectAffected("DeleteTunnel", persistence.EntityTunnel, id, result)
}

func (r *CredentialRepository) scanTunnel(s scanner) (*models.Tunnel, error) {
	var tunnel models.Tunnel

	err := s.Scan(
		&tunnel.ID, &tunnel.Name, &tunnel.Owner, &tunnel.Host, &tunnel.User,
		&tunnel.Secrets.PrivateKey, &tunnel.Secrets.PrivateKeyPassword, &tunnel.Secrets.Password,
		&tunnel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := r.open(&tunnel.Secrets); err != nil {
		return nil, fmt.Errorf("failed to open tunnel secrets: %w", err)
	}

	return &tunnel, nil
}

func (r *CredentialRepository) SaveHPC(ctx context.Context, hpc *models.HPC) error {
	sealed, err := r.seal(hpc.Secrets)
	if err != nil {
		return fmt.Errorf("failed to seal hpc secrets: %w", err)
	}
	if hpc.CreatedAt.IsZero() {
		hpc.CreatedAt = time.Now().UTC()
	}

	var tunnelID sql.NullString
	if hpc.TunnelID != "" {
		tunnelID = sql.NullString{String: hpc.TunnelID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO hpcs (id, name, owner, host, username, private_key, private_key_password, password,
			time_zone, manager, tunnel_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		hpc.ID, hpc.Name, hpc.Owner, hpc.Host, hpc.User,
		sealed.PrivateKey, sealed.PrivateKeyPassword, sealed.Password,
		hpc.TimeZone, hpc.Manager, tunnelID, hpc.CreatedAt,
	)
	if err != nil {
		return classify("SaveHPC", persistence.EntityHPC, hpc.ID, err)
	}

	return nil
}

const hpcColumns = `id, name, owner, host, username, private_key, private_key_password, password,
	time_zone, manager, tunnel_id, created_at`

func (r *CredentialRepository) GetHPC(ctx context.Context, id string) (*models.HPC, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+hpcColumns+` FROM hpcs WHERE id = $1`, id)

	hpc, err := r.scanHPC(row)
	if err != nil {
		return nil, classify("GetHPC", persistence.EntityHPC, id, err)
	}

	if err := r.loadTunnel(ctx, hpc); err != nil {
		return nil, err
	}

	return hpc, nil
}

func (r *CredentialRepository) ListHPCs(ctx context.Context, owner string) ([]*models.HPC, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+hpcColumns+` FROM hpcs WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, classify("ListHPCs", persistence.EntityHPC, "", err)
	}

	hpcs := make([]*models.HPC, 0)
	for rows.Next() {
		hpc, err := r.scanHPC(rows)
		if err != nil {
			rows.Close()

			return nil, fmt.Errorf("failed to scan hpc: %w", err)
		}
		hpcs = append(hpcs, hpc)
	}

	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, classify("ListHPCs", persistence.EntityHPC, "", err)
	}

	for _, hpc := range hpcs {
		if err := r.loadTunnel(ctx, hpc); err != nil {
			return nil, err
		}
	}

	return hpcs, nil
}

func (r *CredentialRepository) DeleteHPC(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM hpcs WHERE id = $1`, id)
	if err != nil {
		return classify("DeleteHPC", persistence.EntityHPC, id, err)
	}

	return expectAffected("DeleteHPC", persistence.EntityHPC, id, result)
}

func (r *CredentialRepository) loadTunnel(ctx context.Context, hpc *models.HPC) error {
	if hpc.TunnelID == "" {
		return nil
	}

	tunnel, err := r.GetTunnel(ctx, hpc.TunnelID)
	if err != nil {
		return err
	}
	hpc.Tunnel = tunnel

	return nil
}

func (r *CredentialRepository) scanHPC(s scanner) (*models.HPC, error) {
	var (
		hpc      models.HPC
		tunnelID sql.NullString
	)

	err := s.Scan(
		&hpc.ID, &hpc.Name, &hpc.Owner, &hpc.Host, &hpc.User,
		&hpc.Secrets.PrivateKey, &hpc.Secrets.PrivateKeyPassword, &hpc.Secrets.Password,
		&hpc.TimeZone, &hpc.Manager, &tunnelID, &hpc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	hpc.TunnelID = tunnelID.String

	if err := r.open(&hpc.Secrets); err != nil {
		return nil, fmt.Errorf("failed to open hpc secrets: %w", err)
	}

	return &hpc, nil
}

func (r *CredentialRepository) SaveDataCatalogueKey(ctx context.Context, key *models.DataCatalogueKey) error {
	code, err := r.box.Encrypt(key.Code)
	if err != nil {
		return fmt.Errorf("failed to seal data catalogue key: %w", err)
	}

	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO datacatalogue_keys (owner, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, key.Owner, code, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return classify("SaveDataCatalogueKey", persistence.EntityCatalogue, key.Owner, err)
	}

	return nil
}

func (r *CredentialRepository) GetDataCatalogueKey(ctx context.Context, owner string) (*models.DataCatalogueKey, error) {
	var key models.DataCatalogueKey

	err := r.db.QueryRowContext(ctx, `
		SELECT owner, code, created_at, updated_at FROM datacatalogue_keys WHERE owner = $1
	`, owner).Scan(&key.Owner, &key.Code, &key.CreatedAt, &key.UpdatedAt)
	if err != nil {
		return nil, classify("GetDataCatalogueKey", persistence.EntityCatalogue, owner, err)
	}

	if key.Code, err = r.box.Decrypt(key.Code); err != nil {
		return nil, fmt.Errorf("failed to open data catalogue key: %w", err)
	}

	return &key, nil
}

func (r *CredentialRepository) UpdateDataCatalogueKey(ctx context.Context, key *models.DataCatalogueKey) error {
	code, err := r.box.Encrypt(key.Code)
	if err != nil {
		return fmt.Errorf("failed to seal data catalogue key: %w", err)
	}

	key.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE datacatalogue_keys SET code = $2, updated_at = $3 WHERE owner = $1
	`, key.Owner, code, key.UpdatedAt)
	if err != nil {
		return classify("UpdateDataCatalogueKey", persistence.EntityCatalogue, key.Owner, err)
	}

	return expectAffected("UpdateDataCatalogueKey", persistence.EntityCatalogue, key.Owner, result)
}

func (r *CredentialRepository) DeleteDataCatalogueKey(ctx context.Context, owner string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM datacatalogue_keys WHERE owner = $1`, owner)
	if err != nil {
		return classify("DeleteDataCatalogueKey", persistence.EntityCatalogue, owner, err)
	}

	return expectAffected("DeleteDataCatalogueKey", persistence.EntityCatalogue, owner, result)
}
