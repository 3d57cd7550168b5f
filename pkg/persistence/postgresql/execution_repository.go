package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
)

type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, external_id, instance_id, workflow, owner, created_at`

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		execution.ID,
		execution.ExternalID,
		execution.InstanceID,
		execution.Workflow,
		execution.Owner,
		execution.CreatedAt,
	)
	if err != nil {
		return classify("Save", persistence.EntityExecution, execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		return nil, classify("GetByID", persistence.EntityExecution, id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE instance_id = $1 ORDER BY created_at`,
		instanceID)
	if err != nil {
		return nil, classify("ListByInstance", persistence.EntityExecution, "", err)
	}
	defer rows.Close()

	executions := make([]*models.WorkflowExecution, 0)
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("ListByInstance", persistence.EntityExecution, "", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) DeleteByInstance(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workflow_executions WHERE instance_id = $1`, instanceID)
	if err != nil {
		return classify("DeleteByInstance", persistence.EntityExecution, instanceID, err)
	}

	return nil
}

func scanExecution(s scanner) (*models.WorkflowExecution, error) {
	var execution models.WorkflowExecution

	err := s.Scan(
		&execution.ID,
		&execution.ExternalID,
		&execution.InstanceID,
		&execution.Workflow,
		&execution.Owner,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &execution, nil
}
