package models

import "context"

// UserContext is the ephemeral, per-request/per-mission bundle of everything
// a Planner or Conductor step needs to act on behalf of one user: where
// their workspace lives, which (provider, model, temperature) backs each
// role, and how to resolve a provider credential. It is owned by the job
// that created it and discarded at job end — never shared across users.
type UserContext struct {
	UserID      string
	ProjectRoot string

	RoleAssignments map[AgentRole]RoleAssignment

	// CredentialLookup resolves a provider name to its secret. Reading
	// the assignment and the credential on every step (rather than once,
	// cached) lets a user change provider or credential mid-mission and
	// have the next step pick it up, per the concurrency model.
	CredentialLookup func(ctx context.Context, provider string) (string, error)
}

// RoleAssignment binds an AgentRole to a concrete provider/model/temperature
// for one user. Persisted per user; read fresh on every Conductor step.
type RoleAssignment struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// Credential is an encrypted provider secret stored at rest.
type Credential struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Provider     string `json:"provider"`
	EncryptedKey []byte `json:"encrypted_key"`
	CreatedAt    string `json:"created_at"`
}

// Project identifies a user's workspace root.
type Project struct {
	Name      string `json:"name"`
	UserID    string `json:"user_id"`
	Root      string `json:"root"`
	CreatedAt string `json:"created_at"`
}
