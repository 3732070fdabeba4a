package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/cartstore/pkg/database"
)

const (
	getQuery    = `SELECT value FROM cart_snapshots WHERE key = $1`
	upsertQuery = `
		INSERT INTO cart_snapshots (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	deleteQuery = `DELETE FROM cart_snapshots WHERE key = $1`
)

// KV implements storage.KV using a PostgreSQL table.
type KV struct {
	db database.DBTX
}

// NewKV creates a new PostgreSQL-backed snapshot store.
func NewKV(db database.DBTX) *KV {
	return &KV{db: db}
}

// Get retrieves a snapshot value by key.
func (s *KV) Get(ctx context.Context, key string) (value string, found bool, err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "GetSnapshot", getQuery)
	defer func() { end(err) }()

	if err = s.db.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("select snapshot %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts a snapshot value.
func (s *KV) Set(ctx context.Context, key, value string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "UpsertSnapshot", upsertQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, upsertQuery, key, value); err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", key, err)
	}
	return nil
}

// Remove deletes a snapshot value.
func (s *KV) Remove(ctx context.Context, key string) (err error) {
	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "DeleteSnapshot", deleteQuery)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteQuery, key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *KV) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
