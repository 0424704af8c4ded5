package db

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
)

const driverName = "sqlite"

const userSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	avatar TEXT NOT NULL DEFAULT '',
	wins INTEGER NOT NULL DEFAULT 0,
	losses INTEGER NOT NULL DEFAULT 0,
	role TEXT NOT NULL DEFAULT 'PLAYER'
);`

// Open connects to the SQLite database at path. ":memory:" gives a private
// in-memory database, which only works over a single connection.
func Open(path string) (*sqlx.DB, error) {
	pool, err := sqlx.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	pool.SetMaxOpenConns(1)
	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database %s: %w", path, err)
	}
	return pool, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, userSchema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	slog.InfoContext(ctx, "DB connection initialized and schema verified.")
	return nil
}
