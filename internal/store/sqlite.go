package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/xkilldash9x/bindpad/api/schemas"
)

// SQLiteRepository keeps binds in a local SQLite file.
type SQLiteRepository struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteRepository, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS binds(
	  seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	  id     TEXT    NOT NULL UNIQUE,
	  code   TEXT    NOT NULL,
	  action TEXT    NOT NULL CHECK (json_valid(action)),
	  repeat INTEGER NOT NULL DEFAULT 0
	);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create binds table: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteRepository{db: db, log: logger.Named("store.sqlite")}, nil
}

func (s *SQLiteRepository) List(ctx context.Context) ([]schemas.Bind, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, code, action, repeat FROM binds ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query binds: %w", err)
	}
	defer rows.Close()

	binds := []schemas.Bind{}
	for rows.Next() {
		b, err := scanSQLiteBind(rows)
		if err != nil {
			return nil, err
		}
		binds = append(binds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return binds, nil
}

func (s *SQLiteRepository) Get(ctx context.Context, id string) (schemas.Bind, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, code, action, repeat FROM binds WHERE id = ?`, id)
	b, err := scanSQLiteBind(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schemas.Bind{}, ErrNotFound
	}
	return b, err
}

func (s *SQLiteRepository) Put(ctx context.Context, b schemas.Bind) error {
	action, err := encodeAction(b.Action)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO binds(id, code, action, repeat) VALUES(?, ?, json(?), ?)
	ON CONFLICT(id) DO UPDATE SET code = excluded.code, action = excluded.action, repeat = excluded.repeat
	`, b.ID, b.Code, action, b.Repeat)
	if err != nil {
		return fmt.Errorf("failed to save bind %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM binds WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete bind %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBind(r rowScanner) (schemas.Bind, error) {
	var (
		b      schemas.Bind
		action string
	)
	if err := r.Scan(&b.ID, &b.Code, &action, &b.Repeat); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schemas.Bind{}, err
		}
		return schemas.Bind{}, fmt.Errorf("failed to scan bind row: %w", err)
	}
	a, err := decodeAction(action)
	if err != nil {
		return schemas.Bind{}, err
	}
	b.Action = a
	return b, nil
}
