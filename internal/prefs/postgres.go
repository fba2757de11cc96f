/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createPreferencesTable = `
CREATE TABLE IF NOT EXISTS snapcards_preferences (
	player_id        TEXT PRIMARY KEY,
	duration_seconds INTEGER NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	if url == "" {
		return nil, errors.New("database url is required")
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := pool.Exec(ctx, createPreferencesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create preferences table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Duration(ctx context.Context, player string) (int, error) {
	var seconds int

	err := s.pool.QueryRow(ctx,
		`SELECT duration_seconds FROM snapcards_preferences WHERE player_id = $1`,
		player,
	).Scan(&seconds)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, ErrNotFound
	case err != nil:
		return 0, fmt.Errorf("failed to query duration: %w", err)
	}

	return seconds, nil
}

func (s *PostgresStore) SetDuration(ctx context.Context, player string, seconds int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapcards_preferences (player_id, duration_seconds, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (player_id) DO UPDATE
		SET duration_seconds = EXCLUDED.duration_seconds, updated_at = now()`,
		player, seconds,
	)
	if err != nil {
		return fmt.Errorf("failed to store duration: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
