package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bindpad/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	sqlCreateBinds = `
        CREATE TABLE IF NOT EXISTS binds (
            seq    BIGSERIAL,
            id     TEXT PRIMARY KEY,
            code   TEXT NOT NULL,
            action JSONB NOT NULL,
            repeat BOOLEAN NOT NULL DEFAULT FALSE
        );
    `
	sqlListBinds = `
        SELECT id, code, action::text, repeat
        FROM binds
        ORDER BY seq ASC;
    `
	sqlGetBind = `
        SELECT id, code, action::text, repeat
        FROM binds
        WHERE id = $1;
    `
	sqlUpsertBind = `
        INSERT INTO binds (id, code, action, repeat)
        VALUES ($1, $2, $3::jsonb, $4)
        ON CONFLICT (id) DO UPDATE SET
            code = EXCLUDED.code,
            action = EXCLUDED.action,
            repeat = EXCLUDED.repeat;
    `
	sqlDeleteBind = `DELETE FROM binds WHERE id = $1;`
)

// PostgresRepository keeps binds in a PostgreSQL table.
type PostgresRepository struct {
	pool DBPool
	log  *zap.Logger
}

// OpenPostgres connects to dsn and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	repo, err := NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return repo, nil
}

// NewPostgres wraps an existing pool and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresRepository, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// EnsureSchema creates the binds table if it is missing.
func (s *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateBinds); err != nil {
		return fmt.Errorf("failed to create binds table: %w", err)
	}
	return nil
}

func (s *PostgresRepository) List(ctx context.Context) ([]schemas.Bind, error) {
	rows, err := s.pool.Query(ctx, sqlListBinds)
	if err != nil {
		return nil, fmt.Errorf("failed to query binds: %w", err)
	}
	return scanBinds(rows)
}

func (s *PostgresRepository) Get(ctx context.Context, id string) (schemas.Bind, error) {
	rows, err := s.pool.Query(ctx, sqlGetBind, id)
	if err != nil {
		return schemas.Bind{}, fmt.Errorf("failed to query bind %s: %w", id, err)
	}
	binds, err := scanBinds(rows)
	if err != nil {
		return schemas.Bind{}, err
	}
	if len(binds) == 0 {
		return schemas.Bind{}, ErrNotFound
	}
	return binds[0], nil
}

func (s *PostgresRepository) Put(ctx context.Context, b schemas.Bind) error {
	action, err := encodeAction(b.Action)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlUpsertBind, b.ID, b.Code, action, b.Repeat); err != nil {
		return fmt.Errorf("failed to save bind %s: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, sqlDeleteBind, id)
	if err != nil {
		return fmt.Errorf("failed to delete bind %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Debug("Delete matched no bind", zap.String("bind_id", id))
	}
	return nil
}

func (s *PostgresRepository) Close() error {
	s.pool.Close()
	return nil
}

func scanBinds(rows pgx.Rows) ([]schemas.Bind, error) {
	defer rows.Close()

	binds := []schemas.Bind{}
	for rows.Next() {
		var (
			b      schemas.Bind
			action string
		)
		if err := rows.Scan(&b.ID, &b.Code, &action, &b.Repeat); err != nil {
			return nil, fmt.Errorf("failed to scan bind row: %w", err)
		}
		a, err := decodeAction(action)
		if err != nil {
			return nil, err
		}
		b.Action = a
		binds = append(binds, b)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return binds, nil
}
