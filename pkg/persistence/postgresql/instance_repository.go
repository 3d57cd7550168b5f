package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
)

type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

const instanceColumns = `id, name, application_id, description, inputs, hpc_inputs, outputs, owner, status, created_at, updated_at`

func (r *InstanceRepository) Save(ctx context.Context, instance *models.AppInstance) error {
	inputsJSON, err := marshalObject(instance.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	hpcInputsJSON := []byte("{}")
	if len(instance.HPCInputs) > 0 {
		hpcInputsJSON, err = json.Marshal(instance.HPCInputs)
		if err != nil {
			return fmt.Errorf("failed to marshal hpc inputs: %w", err)
		}
	}

	outputsJSON, err := marshalObject(instance.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}
	instance.UpdatedAt = now
	if instance.Status == "" {
		instance.Status = models.StatusPrepared
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO app_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		instance.ID,
		instance.Name,
		instance.ApplicationID,
		instance.Description,
		inputsJSON,
		hpcInputsJSON,
		outputsJSON,
		instance.Owner,
		string(instance.Status),
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		return classify("Save", persistence.EntityInstance, instance.Name, err)
	}

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.AppInstance, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+instanceColumns+` FROM app_instances WHERE id = $1`, id)

	instance, err := scanInstance(row)
	if err != nil {
		return nil, classify("GetByID", persistence.EntityInstance, id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) List(ctx context.Context, owner string) ([]*models.AppInstance, error) {
	return r.query(ctx, "List", `SELECT `+instanceColumns+` FROM app_instances WHERE owner = $1 ORDER BY created_at`, owner)
}

func (r *InstanceRepository) ListByStatus(ctx context.Context, statuses ...models.InstanceStatus) ([]*models.AppInstance, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	return r.query(ctx, "ListByStatus",
		`SELECT `+instanceColumns+` FROM app_instances WHERE status = ANY($1) ORDER BY created_at`,
		pq.Array(values))
}

func (r *InstanceRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.AppInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, persistence.EntityInstance, "", err)
	}
	defer rows.Close()

	instances := make([]*models.AppInstance, 0)
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(op, persistence.EntityInstance, "", err)
	}

	return instances, nil
}

func (r *InstanceRepository) UpdateStatus(ctx context.Context, id string, status models.InstanceStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE app_instances SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return classify("UpdateStatus", persistence.EntityInstance, id, err)
	}

	return expectAffected("UpdateStatus", persistence.EntityInstance, id, result)
}

func (r *InstanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM app_instances WHERE id = $1`, id)
	if err != nil {
		return classify("Delete", persistence.EntityInstance, id, err)
	}

	return expectAffected("Delete", persistence.EntityInstance, id, result)
}

func scanInstance(s scanner) (*models.AppInstance, error) {
	var (
		instance      models.AppInstance
		inputsJSON    []byte
		hpcInputsJSON []byte
		outputsJSON   []byte
		status        string
	)

	err := s.Scan(
		&instance.ID,
		&instance.Name,
		&instance.ApplicationID,
		&instance.Description,
		&inputsJSON,
		&hpcInputsJSON,
		&outputsJSON,
		&instance.Owner,
		&status,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)

	if err := json.Unmarshal(inputsJSON, &instance.Inputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
	}
	if err := json.Unmarshal(hpcInputsJSON, &instance.HPCInputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hpc inputs: %w", err)
	}
	if err := json.Unmarshal(outputsJSON, &instance.Outputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outputs: %w", err)
	}

	return &instance, nil
}

func marshalObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(m)
}
