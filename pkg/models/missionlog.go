package models

import "time"

// MissionLog is the ordered, persisted task list for one (user, project)
// mission, together with the goal that produced it.
type MissionLog struct {
	InitialGoal string  `json:"initial_goal"`
	Tasks       []*Task `json:"tasks"`
	NextID      uint32  `json:"-"`
}

// Snapshot returns a defensive copy of the tasks slice and the contained
// tasks, safe for a reader to range over without holding the log's lock.
func (m *MissionLog) Snapshot() []*Task {
	if m == nil {
		return nil
	}
	out := make([]*Task, len(m.Tasks))
	for i, t := range m.Tasks {
		clone := *t
		if t.ToolCall != nil {
			clone.ToolCall = t.ToolCall.Clone()
		}
		out[i] = &clone
	}
	return out
}

// Pending returns the tasks with Done == false, in mission order.
func (m *MissionLog) Pending() []*Task {
	var out []*Task
	for _, t := range m.Snapshot() {
		if !t.Done {
			out = append(out, t)
		}
	}
	return out
}

// MissionStatus is the per-user entry in the mission-control registry.
type MissionStatus struct {
	Running       bool `json:"running"`
	StopRequested bool `json:"stop_requested"`

	// StartedAt and LastActivityAt support the stale-mission sweep
	// (internal/scheduler): a mission running with no activity beyond a
	// staleness window is presumed crashed and force-stopped.
	StartedAt      time.Time `json:"started_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
}

// MissionState is the Conductor's state machine position for one mission.
type MissionState string

const (
	MissionIdle       MissionState = "idle"
	MissionPlanning   MissionState = "planning"
	MissionReady      MissionState = "ready"
	MissionExecuting  MissionState = "executing"
	MissionRetrying   MissionState = "retrying"
	MissionReplanning MissionState = "replanning"
	MissionDone       MissionState = "done"
	MissionFailed     MissionState = "failed"
	MissionStopped    MissionState = "stopped"
)
