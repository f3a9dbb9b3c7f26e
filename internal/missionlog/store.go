// Package missionlog implements the Mission Log (C1): the per-(user,
// project) ordered task list, write-through persisted and fanned out to the
// Notification Bus on every mutation.
//
// Grounded on the original Python MissionLogService
// (_save_and_notify/load_log_for_active_project/set_initial_plan/add_task/
// mark_task_as_done/get_tasks/clear_all_tasks/replace_tasks_from_id/
// get_initial_goal), generalized to Go with two interchangeable Store
// backends (filestore, cockroach) behind the same interface so the
// Conductor is storage-agnostic.
package missionlog

import (
	"context"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// indexTaskDescription and indexToolName ground the "index_project_context
// as the mandatory first task" supplemented feature (SPEC_FULL.md §4.12),
// carried over from set_initial_plan's unconditional first add_task call.
const (
	indexTaskDescription = "Index the project to build a contextual map."
	indexToolName         = "index_project_context"
)

// Store is the Mission Log's persistence contract. Implementations must
// flush before returning from every mutator and must reconstruct next_id as
// max(id)+1 on load, matching spec.md §4.1's persistence invariant.
type Store interface {
	// SetInitialPlan clears any existing tasks for (user, project), stores
	// userGoal, prepends the pre-canned index_project_context task, then
	// appends one Task per step in steps, all with fresh ids.
	SetInitialPlan(ctx context.Context, userID, project string, steps []string, userGoal string) (*models.MissionLog, error)

	// GetTasks returns a deep-enough snapshot of the log's tasks. done, when
	// non-nil, filters to that completion state.
	GetTasks(ctx context.Context, userID, project string, done *bool) ([]*models.Task, error)

	// MarkDone sets Done=true and clears LastError for taskID. No-op if
	// already done; returns false without error if taskID is not found.
	MarkDone(ctx context.Context, userID, project string, taskID uint32) (bool, error)

	// RecordFailure sets LastError for taskID without otherwise mutating
	// the task. Used by the Conductor's per-task retry loop between
	// attempts.
	RecordFailure(ctx context.Context, userID, project string, taskID uint32, lastError string) error

	// ReplaceTasksFrom drops the task with id startTaskID and everything
	// after it (positional truncation, per spec.md §4.1 — not id
	// comparison) and appends newSteps as fresh tasks.
	ReplaceTasksFrom(ctx context.Context, userID, project string, startTaskID uint32, newSteps []string) (*models.MissionLog, error)

	// InitialGoal returns the goal string recorded by the most recent
	// SetInitialPlan call.
	InitialGoal(ctx context.Context, userID, project string) (string, error)

	// Load returns the full MissionLog for (user, project), reconstructing
	// it from persisted state (or an empty log) if not already resident.
	Load(ctx context.Context, userID, project string) (*models.MissionLog, error)

	// ClearAll removes every task for (user, project).
	ClearAll(ctx context.Context, userID, project string) error
}

// NotifyFunc is invoked by a Store after every successful flush, matching
// spec.md §4.1's "mission_log_updated is emitted after a successful flush,
// never before." Stores accept this as a constructor parameter rather than
// importing the Notification Bus directly, keeping the persistence layer
// decoupled from transport.
type NotifyFunc func(ctx context.Context, userID string, log *models.MissionLog)

func seedIndexTask(log *models.MissionLog) {
	log.Tasks = append(log.Tasks, &models.Task{
		ID:          log.NextID,
		Description: indexTaskDescription,
		ToolCall: &models.ToolInvocation{
			ToolName:  indexToolName,
			Arguments: map[string]any{"path": "."},
		},
	})
	log.NextID++
}
