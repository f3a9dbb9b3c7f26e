package models

import "time"

// JobStatus is the lifecycle state of an asynchronously dispatched tool job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// JobRecord persists one async tool invocation (e.g. a long-running
// run_shell_command) so the Conductor can dispatch it without blocking the
// mission loop and poll or be notified on completion.
type JobRecord struct {
	ID         string     `json:"id"`
	ToolName   string     `json:"tool_name"`
	ToolCallID string     `json:"tool_call_id"`
	Status     JobStatus  `json:"status"`
	Result     *ToolResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// ToolResult is the classified outcome of one tool invocation.
type ToolResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Raw is the tool's unclassified return value, stringified for
	// persistence and for the tool_call_completed event payload.
	Raw any `json:"raw,omitempty"`
}
