package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/persistence/memory"
	"github.com/mso4sc/experiments/pkg/persistence/postgresql"
	"github.com/mso4sc/experiments/pkg/secrets"
)

var supportedPersistenceProviders = []string{"memory", "postgres", "postgresql"}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, secretKey string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		box, err := secrets.NewBox(secretKey)
		if err != nil {
			return nil, fmt.Errorf("secret key: %w", err)
		}
		if !box.Enabled() {
			logger.WarnContext(ctx, "No secret key configured, HPC credentials are stored in clear text")
		}

		return postgresql.NewPersistence(ctx, logger, databaseURL, box)
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence, nothing survives a restart")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database url %q, expected one of %v", databaseURL, supportedPersistenceProviders)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, _ := strings.Cut(databaseURL, "://")

	return provider
}
