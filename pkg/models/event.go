package models

import "time"

// EventType names the tagged union of events the core pushes to the
// Notification Bus. Clients must tolerate unknown types.
type EventType string

const (
	EventAgentStatus       EventType = "agent_status"
	EventAuraResponse      EventType = "aura_response"
	EventSystemLog         EventType = "system_log"
	EventPhase             EventType = "phase"
	EventCodeStreamChunk   EventType = "code_stream_chunk"
	EventActiveTaskUpdated EventType = "active_task_updated"
	EventMissionLogUpdated EventType = "mission_log_updated"
	EventMissionSuccess    EventType = "mission_success"
	EventMissionFailure    EventType = "mission_failure"
	EventFileTreeUpdated   EventType = "file_tree_updated"
	EventToolCallInitiated EventType = "tool_call_initiated"
	EventToolCallCompleted EventType = "tool_call_completed"
	EventUserInputRequested EventType = "user_input_requested"
)

// AgentStatus is the payload of an agent_status event.
type AgentStatus string

const (
	AgentStatusIdle     AgentStatus = "idle"
	AgentStatusThinking AgentStatus = "thinking"
	AgentStatusWorking  AgentStatus = "working"
)

// Event is one structured message pushed to a user's client connections.
// Only the fields relevant to Type are populated; the rest are zero.
type Event struct {
	Type EventType `json:"type"`

	Status AgentStatus `json:"status,omitempty"`

	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	CodeFilePath string `json:"file_path,omitempty"`
	CodeChunk    string `json:"chunk,omitempty"`

	TaskID uint32  `json:"task_id,omitempty"`
	Tasks  []*Task `json:"tasks,omitempty"`

	Reason string `json:"reason,omitempty"`

	FileTree any `json:"tree,omitempty"`

	WidgetID         string `json:"widget_id,omitempty"`
	ToolName         string `json:"tool_name,omitempty"`
	DisplayArgs      any    `json:"display_args,omitempty"`
	ToolStatus       string `json:"status_text,omitempty"`
	ToolResultString string `json:"result,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// NewEvent stamps an event with the current time. Callers should prefer
// this constructor over the zero value so EmittedAt is never empty.
func NewEvent(t EventType) Event {
	return Event{Type: t, EmittedAt: time.Now()}
}
