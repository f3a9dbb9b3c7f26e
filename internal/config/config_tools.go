package config

import "time"

// ToolsConfig configures the Tool Runner's (C4) sandbox: where project
// workspaces are rooted (every resolved path must be a descendant of a
// project's root under this, spec.md §4.4), and the bounds placed on the
// one tool the core itself cannot supervise for forward progress —
// run_shell_command.
type ToolsConfig struct {
	// WorkspaceRoot is the parent directory under which each user's
	// per-project workspace lives (spec.md §6: "Workspace files live
	// under a per-user root; the core treats the root as an opaque
	// directory.").
	WorkspaceRoot string `yaml:"workspace_root"`

	// ShellTimeout bounds a single run_shell_command invocation. The core
	// imposes no task-level timeout beyond this (spec.md §5: "long-running
	// tool actions are the tool author's responsibility"), but an
	// unbounded shell call would still pin a mission goroutine forever.
	ShellTimeout time.Duration `yaml:"shell_timeout"`

	// MaxShellOutputBytes truncates captured stdout/stderr before it is
	// classified and stringified into a tool_call_completed event.
	MaxShellOutputBytes int64 `yaml:"max_shell_output_bytes"`
}
