package credentials

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// RoleStore is the read contract for model-assignment storage named in
// spec.md §1 ("User, credential, and model-assignment storage (only the
// read contracts used by the core)") — the core never writes a role
// assignment, it only resolves one per mission step, so this type exposes
// exactly one method.
type RoleStore interface {
	GetRoleAssignment(ctx context.Context, userID string, role models.AgentRole) (models.RoleAssignment, error)
}

// ErrRoleNotAssigned is returned when a user has no (provider, model,
// temperature) bound to the requested role — spec.md §4.3 step 1 treats
// this as a ConfigError.
var ErrRoleNotAssigned = fmt.Errorf("credentials: role not assigned")

// RoleAssignments is a minimal Postgres-backed RoleStore sharing
// PostgresStore's pool, grounded on its provider_keys table pattern for a
// second, structurally similar lookup table.
type RoleAssignments struct {
	pool *pgxpool.Pool
}

// NewRoleAssignments wraps an already-opened PostgresStore's pool for role
// lookups, avoiding a second connection pool to the same database. It
// ensures the role_assignments table exists.
func NewRoleAssignments(ctx context.Context, store *PostgresStore) (*RoleAssignments, error) {
	r := &RoleAssignments{pool: store.pool}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RoleAssignments) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS role_assignments (
			user_id     TEXT NOT NULL,
			role        TEXT NOT NULL,
			provider    TEXT NOT NULL,
			model       TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL DEFAULT 0.2,
			PRIMARY KEY (user_id, role)
		)
	`)
	if err != nil {
		return fmt.Errorf("credentials: ensure role_assignments schema: %w", err)
	}
	return nil
}

// GetRoleAssignment resolves (provider, model, temperature) for one
// (userID, role) pair.
func (r *RoleAssignments) GetRoleAssignment(ctx context.Context, userID string, role models.AgentRole) (models.RoleAssignment, error) {
	var a models.RoleAssignment
	err := r.pool.QueryRow(ctx, `
		SELECT provider, model, temperature FROM role_assignments WHERE user_id = $1 AND role = $2
	`, userID, string(role)).Scan(&a.Provider, &a.Model, &a.Temperature)
	if err == pgx.ErrNoRows {
		return models.RoleAssignment{}, ErrRoleNotAssigned
	}
	if err != nil {
		return models.RoleAssignment{}, fmt.Errorf("credentials: get role assignment: %w", err)
	}
	return a, nil
}

// Put upserts a role assignment, used by the seed/admin path (not the core
// mission loop, which only reads).
func (r *RoleAssignments) Put(ctx context.Context, userID string, role models.AgentRole, provider, model string, temperature float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_assignments (user_id, role, provider, model, temperature)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, role)
		DO UPDATE SET provider = EXCLUDED.provider, model = EXCLUDED.model, temperature = EXCLUDED.temperature
	`, userID, string(role), provider, model, temperature)
	if err != nil {
		return fmt.Errorf("credentials: put role assignment: %w", err)
	}
	return nil
}

// Resolver adapts a RoleStore to llmgateway.RoleResolver's plain-function
// shape (spec.md §4.3 step 1).
func Resolver(store RoleStore) func(ctx context.Context, userID string, role models.AgentRole) (string, string, float64, error) {
	return func(ctx context.Context, userID string, role models.AgentRole) (string, string, float64, error) {
		a, err := store.GetRoleAssignment(ctx, userID, role)
		if err != nil {
			return "", "", 0, err
		}
		return a.Provider, a.Model, a.Temperature, nil
	}
}
