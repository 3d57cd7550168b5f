// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/persistence/sqlbase"
	"github.com/mso4sc/experiments/pkg/secrets"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	applications *ApplicationRepository
	instances    *InstanceRepository
	executions   *ExecutionRepository
	logs         *LogRepository
	credentials  *CredentialRepository
}

// NewPersistence connects, migrates the schema and builds the repositories.
// box encrypts credential secrets; it may be a keyless box.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, box *secrets.Box) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	err = sqlbase.NewMigrationManager(logger, database, migrations()).RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if box == nil {
		box, _ = secrets.NewBox("")
	}
	if !box.Enabled() {
		logger.WarnContext(ctx, "No secret key configured, credential secrets are stored unencrypted")
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		applications: NewApplicationRepository(database, logger),
		instances:    NewInstanceRepository(database, logger),
		executions:   NewExecutionRepository(database, logger),
		logs:         NewLogRepository(database, logger),
		credentials:  NewCredentialRepository(database, logger, box),
	}, nil
}

func (p *Persistence) Applications() persistence.ApplicationRepository { return p.applications }

func (p *Persistence) Instances() persistence.InstanceRepository { return p.instances }

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }

func (p *Persistence) Logs() persistence.LogRepository { return p.logs }

func (p *Persistence) Credentials() persistence.CredentialRepository { return p.credentials }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// classify maps driver errors onto the persistence taxonomy.
func classify(op, entity, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NotFound(op, entity, id)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return persistence.NewEntityError(op, entity, id, persistence.ErrAlreadyExists)
		case pqForeignKeyViolation:
			return persistence.NewEntityError(op, entity, id, fmt.Errorf("%w: %s", persistence.ErrNotFound, pqErr.Detail))
		}
	}

	return persistence.NewEntityError(op, entity, id, err)
}

// expectAffected turns a zero-row update or delete into a not-found error.
func expectAffected(op, entity, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEntityError(op, entity, id, err)
	}
	if affected == 0 {
		return persistence.NotFound(op, entity, id)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
