package conductor

import (
	"context"
	"time"

	"github.com/CarpseDeam/aura-backend/internal/jobs"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// recordJobStart and recordJobFinish write a jobs.Job audit-trail entry for
// every tool invocation when Conductor.JobStore is set, keyed by the same
// widgetID used for the tool_call_initiated/completed event pair. Failures
// to write are swallowed — the ledger is an observability aid, never a
// condition the mission loop depends on.
func (c *Conductor) recordJobStart(ctx context.Context, widgetID, toolName string) {
	if c.JobStore == nil {
		return
	}
	_ = c.JobStore.Create(ctx, &jobs.Job{
		ID:         widgetID,
		ToolName:   toolName,
		ToolCallID: widgetID,
		Status:     jobs.StatusRunning,
		CreatedAt:  time.Now(),
		StartedAt:  time.Now(),
	})
}

func (c *Conductor) recordJobFinish(ctx context.Context, widgetID string, result *models.ToolResult, errMsg string) {
	if c.JobStore == nil {
		return
	}
	job, err := c.JobStore.Get(ctx, widgetID)
	if err != nil || job == nil {
		return
	}
	job.FinishedAt = time.Now()
	if errMsg != "" {
		job.Status = jobs.StatusFailed
		job.Error = errMsg
	} else {
		job.Status = jobs.StatusSucceeded
		job.Result = result
	}
	_ = c.JobStore.Update(ctx, job)
}

// busNotifier adapts *bus.Bus to tools.NotificationBus for one mission's
// request_user_input tool call, binding the userID the bare Bus API needs
// explicitly on every method but the tool handler's narrow interface does
// not carry.
type busNotifier struct {
	bus interface {
		BroadcastToUser(ctx context.Context, userID string, event *models.Event)
	}
	userID string
}

func (n busNotifier) PublishInputRequest(ctx context.Context, question string) {
	n.bus.BroadcastToUser(ctx, n.userID, &models.Event{
		Type:      models.EventUserInputRequested,
		Content:   question,
		EmittedAt: time.Now(),
	})
}

// projectRootProvider adapts ProjectContext to tools.ProjectRootProvider for
// one (userID, project) pair.
type projectRootProvider struct {
	project ProjectContext
	userID  string
	name    string
}

func (p projectRootProvider) ProjectRoot() string {
	return p.project.ProjectRoot(p.userID, p.name)
}

// vectorIndexer adapts VectorContext to tools.VectorIndexer. VectorContext
// only names the narrow Query read contract spec.md §1 scopes the core to;
// IndexProject is satisfied only when the concrete VectorContext
// implementation also offers it, keeping indexing itself an external
// collaborator concern rather than something the core implements.
type vectorIndexer struct {
	vector VectorContext
}

// indexableVectorContext is the optional write-side facet a VectorContext
// implementation may also provide.
type indexableVectorContext interface {
	IndexProject(ctx context.Context, root string) error
}

func (v vectorIndexer) IndexProject(ctx context.Context, root string) error {
	if indexer, ok := v.vector.(indexableVectorContext); ok {
		return indexer.IndexProject(ctx, root)
	}
	return nil
}
