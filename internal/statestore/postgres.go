package statestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stock-orderflow/internal/config"
)

const (
	upsertEntrySQL = `INSERT INTO engine_state (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value,
        updated_at = now();`

	getEntrySQL = `SELECT value FROM engine_state WHERE key = $1;`

	deleteEntrySQL = `DELETE FROM engine_state WHERE key = $1;`

	clearEntriesSQL = `DELETE FROM engine_state;`

	createTableSQL = `CREATE TABLE IF NOT EXISTS engine_state (
        key        TEXT PRIMARY KEY,
        value      BYTEA NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Postgres persists engine state into a single key-value table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wires a pgx pool into a Postgres store and ensures the backing
// table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	store := &Postgres{pool: pool}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("create engine_state table: %w", err)
	}
	return store, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

func (p *Postgres) getPool() (*pgxpool.Pool, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	return p.pool, nil
}

// Get fetches the value stored under key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	pool, err := p.getPool()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	if scanErr := pool.QueryRow(ctx, getEntrySQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get state entry: %w", scanErr)
	}
	return value, true, nil
}

// Put upserts value under key.
func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertEntrySQL, key, value); execErr != nil {
		return fmt.Errorf("upsert state entry: %w", execErr)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteEntrySQL, key); execErr != nil {
		return fmt.Errorf("delete state entry: %w", execErr)
	}
	return nil
}

// Clear drops every key.
func (p *Postgres) Clear(ctx context.Context) error {
	pool, err := p.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, clearEntriesSQL); execErr != nil {
		return fmt.Errorf("clear state entries: %w", execErr)
	}
	return nil
}

var _ Store = (*Postgres)(nil)
