package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/internal/config"
	"github.com/xkilldash9x/bindpad/internal/store"
)

// repositoryProvider opens the bind repository selected by the config. It
// is an interface so command tests can hand in an in-memory repository.
type repositoryProvider interface {
	Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (store.Repository, error)
}

type defaultRepositoryProvider struct{}

// NewRepositoryProvider returns the provider used in production.
func NewRepositoryProvider() repositoryProvider {
	return &defaultRepositoryProvider{}
}

// Open connects to the file, SQLite or Postgres backend.
func (p *defaultRepositoryProvider) Open(ctx context.Context, cfg config.Interface, logger *zap.Logger) (store.Repository, error) {
	sc := cfg.Store()
	switch sc.Backend {
	case config.BackendFile:
		logger.Debug("Opening bind file", zap.String("path", expandPath(sc.Path)))
		return store.OpenFile(sc.Path, logger)
	case config.BackendSQLite:
		logger.Debug("Opening SQLite bind store", zap.String("path", expandPath(sc.Path)))
		if err := os.MkdirAll(filepath.Dir(sc.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		return store.OpenSQLite(ctx, sc.Path, logger)
	case config.BackendPostgres:
		return store.OpenPostgres(ctx, sc.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}
