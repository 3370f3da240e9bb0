package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps pgxpool.Pool for database operations
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new DB connection pool
func NewDB(url string) (*DB, error) {
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (d *DB) Close(ctx context.Context) error {
	d.pool.Close()
	return nil
}

// Ping checks the database is reachable
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	device_id        TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	firmware_version TEXT NOT NULL DEFAULT '',
	active           BOOLEAN NOT NULL DEFAULT FALSE,
	added_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema creates the device table when missing
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, schema)
	return err
}
