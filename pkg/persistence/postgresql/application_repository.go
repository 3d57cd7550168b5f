package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence"
)

type ApplicationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewApplicationRepository(db *sql.DB, logger *slog.Logger) *ApplicationRepository {
	return &ApplicationRepository{db: db, logger: logger}
}

const applicationColumns = `id, name, description, marketplace_id, owner, created_at`

func (r *ApplicationRepository) Save(ctx context.Context, app *models.Application) error {
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, app.ID, app.Name, app.Description, app.MarketplaceID, app.Owner, app.CreatedAt)
	if err != nil {
		return classify("Save", persistence.EntityApplication, app.Name, err)
	}

	return nil
}

func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)

	app, err := scanApplication(row)
	if err != nil {
		return nil, classify("GetByID", persistence.EntityApplication, id, err)
	}

	return app, nil
}

func (r *ApplicationRepository) List(ctx context.Context, owner string) ([]*models.Application, error) {
	return r.query(ctx, "List", `SELECT `+applicationColumns+` FROM applications WHERE owner = $1 ORDER BY created_at`, owner)
}

func (r *ApplicationRepository) ListByMarketplace(ctx context.Context, marketplaceIDs []string) ([]*models.Application, error) {
	return r.query(ctx, "ListByMarketplace",
		`SELECT `+applicationColumns+` FROM applications WHERE marketplace_id = ANY($1) ORDER BY created_at`,
		pq.Array(marketplaceIDs))
}

func (r *ApplicationRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Application, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, persistence.EntityApplication, "", err)
	}
	defer rows.Close()

	apps := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(op, persistence.EntityApplication, "", err)
	}

	return apps, nil
}

func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		return classify("Delete", persistence.EntityApplication, id, err)
	}

	return expectAffected("Delete", persistence.EntityApplication, id, result)
}

func scanApplication(s scanner) (*models.Application, error) {
	var app models.Application

	err := s.Scan(&app.ID, &app.Name, &app.Description, &app.MarketplaceID, &app.Owner, &app.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &app, nil
}
