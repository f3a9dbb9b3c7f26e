package config

import "time"

// ServerConfig configures the Core API surface's listener (spec.md §6):
// the HTTP routes and the WebSocket upgrade path the Notification Bus
// streams Events over. Authentication and routing themselves are named
// out-of-scope collaborators (spec.md §1) — this only configures where the
// core listens.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
	WSPath   string `yaml:"ws_path"`
}

// DatabaseConfig configures the Postgres-family connection (CockroachDB or
// plain Postgres, both speak the wire protocol) shared by the Mission Log,
// Tool Runner job store, and credential store's Cockroach/Postgres-backed
// implementations.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
