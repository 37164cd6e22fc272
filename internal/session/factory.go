// internal/session/factory.go
package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Safphere/OMG-Agent/internal/config"
)

// NewStoreFromConfig builds the configured session store backend.
func NewStoreFromConfig(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.SessionBackendPostgres:
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres session backend requires a connection url")
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to session database: %w", err)
		}
		store, err := NewPostgresStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case config.SessionBackendFile, "":
		return NewFileStore(cfg.Root, logger)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
