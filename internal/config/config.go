// Package config loads Aura's process-wide, immutable-after-init
// configuration: the pieces named in spec.md §5/§6 that are read once at
// startup and never mutated afterward (role assignments and credentials are
// deliberately NOT here — those are read fresh on every mission step from
// their own collaborators, per spec.md §5's "Credential lookup and role
// assignments" policy).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Aura core.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	LLM           LLMConfig           `yaml:"llm"`
	Tools         ToolsConfig         `yaml:"tools"`
	Cron          CronConfig          `yaml:"cron"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Load reads a YAML file at path (if non-empty and present), expands
// ${VAR}-style environment references in its bytes, unmarshals it over a
// defaulted Config, then applies the environment-variable overrides
// enumerated in spec.md §6 so a deployment can run on env vars alone with
// no file at all.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with every field's default value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 8080,
			WSPath:   "/ws",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		LLM: LLMConfig{
			RequestTimeout: 300 * time.Second,
		},
		Tools: ToolsConfig{
			WorkspaceRoot:       "./workspaces",
			ShellTimeout:        2 * time.Minute,
			MaxShellOutputBytes: 1 << 20,
		},
		Cron: CronConfig{
			SweepInterval: 1 * time.Minute,
			StaleAfter:    10 * time.Minute,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "json"},
			Metrics: MetricsConfig{Enabled: true, Port: 9090},
			Tracing: TracingConfig{Enabled: false, ServiceName: "aura-core", SamplingRate: 0.1},
		},
	}
}

// applyEnvOverrides layers spec.md §6's one required environment variable,
// plus the handful of operational knobs a deployment commonly pins via env
// rather than a checked-in file, on top of whatever the YAML file set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLM_SERVER_URL"); v != "" {
		cfg.LLM.ServerURL = v
	}
	if v := os.Getenv("AURA_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("AURA_HTTP_PORT"); v != "" {
		if port, err := parsePort(v); err == nil {
			cfg.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("AURA_WORKSPACE_ROOT"); v != "" {
		cfg.Tools.WorkspaceRoot = v
	}
	if v := os.Getenv("AURA_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}

// Validate enforces spec.md §6's one hard requirement — LLM_SERVER_URL
// must be set, or every mission aborts with a ConfigError on its first LLM
// call (spec.md §7) — by failing fast at startup instead.
func (c *Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.LLM.ServerURL) == "" {
		issues = append(issues, "llm.server_url (or LLM_SERVER_URL) is required")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		issues = append(issues, "database.url (or AURA_DATABASE_URL) is required")
	}
	if strings.TrimSpace(c.Tools.WorkspaceRoot) == "" {
		issues = append(issues, "tools.workspace_root is required")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidationError reports every configuration problem found, not just the
// first, so an operator fixes a misconfigured deployment in one pass.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid configuration: %s", strings.Join(e.Issues, "; "))
}
