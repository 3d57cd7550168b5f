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

type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewLogRepository(db *sql.DB, logger *slog.Logger) *LogRepository {
	return &LogRepository{db: db, logger: logger}
}

func (r *LogRepository) Append(ctx context.Context, entry *models.InstanceLog) error {
	if entry.Generated.IsZero() {
		entry.Generated = time.Now().UTC()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO instance_logs (instance_id, generated, message)
		VALUES ($1, $2, $3)
		RETURNING id
	`, entry.InstanceID, entry.Generated, entry.Message).Scan(&entry.ID)
	if err != nil {
		return classify("Append", persistence.EntityInstance, entry.InstanceID, err)
	}

	return nil
}

func (r *LogRepository) List(ctx context.Context, instanceID string, offset int) ([]*models.InstanceLog, error) {
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_id, generated, message
		FROM instance_logs
		WHERE instance_id = $1
		ORDER BY id
		OFFSET $2
	`, instanceID, offset)
	if err != nil {
		return nil, classify("List", persistence.EntityInstance, instanceID, err)
	}
	defer rows.Close()

	lines := make([]*models.InstanceLog, 0)
	for rows.Next() {
		var line models.InstanceLog
		if err := rows.Scan(&line.ID, &line.InstanceID, &line.Generated, &line.Message); err != nil {
			return nil, fmt.Errorf("failed to scan instance log: %w", err)
		}
		lines = append(lines, &line)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("List", persistence.EntityInstance, instanceID, err)
	}

	return lines, nil
}

func (r *LogRepository) DeleteByInstance(ctx context.Context, instanceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM instance_logs WHERE instance_id = $1`, instanceID)
	if err != nil {
		return classify("DeleteByInstance", persistence.EntityInstance, instanceID, err)
	}

	return nil
}
