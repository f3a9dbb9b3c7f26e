package config

import "time"

// LLMConfig configures the LLM Gateway's (C3) one outbound collaborator:
// the external LLM-provider-abstracting service named in spec.md §6.
// ServerURL is LLM_SERVER_URL from the environment — spec.md names it as
// the sole required environment variable, and a missing value is a
// ConfigError (spec.md §7) at startup rather than at the first mission
// step.
type LLMConfig struct {
	ServerURL      string        `yaml:"server_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}
