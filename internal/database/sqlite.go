package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteDB wraps the embedded warehouse database handle.
type SQLiteDB struct {
	DB     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDB opens (creating if needed) the warehouse database at path.
// Refresh operations are serialized by the caller, so a single
// connection is enough and keeps SQLite's writer semantics simple.
func NewSQLiteDB(ctx context.Context, path string, logger *zap.Logger) (*SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}

	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	logger.Info("opened warehouse database", zap.String("path", path))

	return &SQLiteDB{DB: db, logger: logger}, nil
}

// Close closes the database handle.
func (s *SQLiteDB) Close() error {
	if s.DB != nil {
		s.logger.Info("warehouse database closed")
		return s.DB.Close()
	}
	return nil
}

// Health checks if the database is reachable.
func (s *SQLiteDB) Health(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
