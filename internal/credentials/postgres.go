package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists encrypted provider keys in a provider_keys table
// keyed by (user_id, provider_name), grounded on the original source's
// ProviderKey ORM model. Uses pgx's connection pool rather than
// database/sql + lib/pq (used for internal/missionlog and internal/jobs)
// so the module exercises both Postgres drivers, per DESIGN.md.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pooled connection to dsn and verifies it with a
// bounded ping, then ensures the provider_keys table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("credentials: dsn is required")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("credentials: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("credentials: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("credentials: ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS provider_keys (
			user_id       TEXT NOT NULL,
			provider_name TEXT NOT NULL,
			encrypted_key TEXT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, provider_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("credentials: ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Put upserts the encrypted token for (userID, provider).
func (s *PostgresStore) Put(ctx context.Context, userID, provider, encryptedKey string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_keys (user_id, provider_name, encrypted_key, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, provider_name)
		DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key, updated_at = now()
	`, userID, provider, encryptedKey)
	if err != nil {
		return fmt.Errorf("credentials: put: %w", err)
	}
	return nil
}

// Get returns the encrypted token for (userID, provider).
func (s *PostgresStore) Get(ctx context.Context, userID, provider string) (string, error) {
	var encryptedKey string
	err := s.pool.QueryRow(ctx, `
		SELECT encrypted_key FROM provider_keys WHERE user_id = $1 AND provider_name = $2
	`, userID, provider).Scan(&encryptedKey)
	if err == pgx.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credentials: get: %w", err)
	}
	return encryptedKey, nil
}

// Delete removes the stored key for (userID, provider), if any.
func (s *PostgresStore) Delete(ctx context.Context, userID, provider string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM provider_keys WHERE user_id = $1 AND provider_name = $2
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("credentials: delete: %w", err)
	}
	return nil
}

// ListProviders returns the providers userID has a stored key for.
func (s *PostgresStore) ListProviders(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_name FROM provider_keys WHERE user_id = $1 ORDER BY provider_name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("credentials: list providers: %w", err)
	}
	defer rows.Close()

	var providers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("credentials: scan provider: %w", err)
		}
		providers = append(providers, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credentials: list providers: %w", err)
	}
	return providers, nil
}
