// Package conductor implements the Conductor (C6): the mission state
// machine that iterates a project's pending tasks, selects and executes one
// tool per task, and drives the retry/replan escalation path.
//
// Grounded on the original source's ConductorService
// (execute_mission_in_background, execute_mission, _get_tool_call_for_task,
// _is_result_an_error, _execute_strategic_replan, _handle_mission_completion),
// translated from one asyncio while-loop method into a Go struct whose Run
// method implements the same state machine against context cancellation
// instead of an external mission_control polling flag alone.
package conductor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CarpseDeam/aura-backend/internal/bus"
	"github.com/CarpseDeam/aura-backend/internal/jobs"
	"github.com/CarpseDeam/aura-backend/internal/llmcontext"
	"github.com/CarpseDeam/aura-backend/internal/llmgateway"
	"github.com/CarpseDeam/aura-backend/internal/missionlog"
	"github.com/CarpseDeam/aura-backend/internal/observability"
	"github.com/CarpseDeam/aura-backend/internal/planner"
	"github.com/CarpseDeam/aura-backend/internal/planner/jsonextract"
	"github.com/CarpseDeam/aura-backend/internal/prompts"
	"github.com/CarpseDeam/aura-backend/internal/tools"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// maxRetriesPerTask is the per-task retry budget named in spec.md §4.6:
// one retry, i.e. two attempts total (see DESIGN.md's Open Question
// resolution).
const maxRetriesPerTask = 1

// interTaskYield is the brief pause between successfully completed tasks
// that keeps the Notification Bus responsive, per spec.md §4.6 step 6.
const interTaskYield = 500 * time.Millisecond

// maxHistoryTokens bounds how much of the mission-log history the Coder
// prompt carries. A long-running mission can accumulate hundreds of tasks;
// without a cap the tool-selector prompt grows unbounded and eventually
// exceeds the role's model context window.
const maxHistoryTokens = 4000

// renderHistory joins the mission-log history lines into one string,
// truncating the oldest entries first (keeping the initial task, which
// usually carries the seed/indexing step, plus whatever recent history
// fits) when the estimated token count exceeds maxHistoryTokens.
func renderHistory(lines []llmcontext.Message) string {
	truncator := llmcontext.NewTruncator(maxHistoryTokens)
	truncator.SetKeepFirst(1)
	kept := truncator.Truncate(lines)

	var b strings.Builder
	for _, m := range kept {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// ProjectContext is the narrow slice of the project manager the Conductor
// needs: the current file tree and the contents of any schema/model files
// (the "Data Contract") to pass to the Coder and code-generation prompts.
type ProjectContext interface {
	FileTree(ctx context.Context, userID, project string) ([]string, error)
	DataContract(ctx context.Context, userID, project string) (string, error)
	ProjectRoot(userID, project string) string
}

// VectorContext is the narrow slice of the vector-context service the
// Coder's tool-selector prompt needs for relevant-snippet retrieval.
type VectorContext interface {
	Query(ctx context.Context, userID, project, query string) (string, error)
}

// Conductor wires the Mission Log, Notification Bus, Tool Runner, Planner
// Pipeline, and an LLM Gateway (for the Coder-role tool-selector and
// write_file content-synthesis calls that are the Conductor's own, not the
// Planner Pipeline's) into the mission state machine.
type Conductor struct {
	Bus     *bus.Bus
	Store   missionlog.Store
	Tools   *tools.Registry
	Planner *planner.Pipeline
	Gateway *llmgateway.Gateway
	Project ProjectContext
	Vector  VectorContext
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// JobStore, if set, records one jobs.Job per tool invocation as an
	// audit trail (SPEC_FULL.md's JobRecord) — the mission loop itself
	// stays synchronous; this is a ledger, not a dispatch queue.
	JobStore jobs.Store
}

// ErrMissionAlreadyRunning is returned by Run when the caller attempts to
// dispatch a second mission for a (user, project) pair that already has one
// executing, enforcing spec.md §5's forbidden-concurrency rule.
var ErrMissionAlreadyRunning = fmt.Errorf("a mission is already running for this user")

// Run executes dispatch()'s mission loop to completion (spec.md §4.6). It
// is the Conductor's sole entry point for actually running tasks; plan()
// happens upstream, through the Planner Pipeline writing to the Mission Log
// directly.
func (c *Conductor) Run(ctx context.Context, userID, project string) error {
	if !c.Bus.SetRunning(userID) {
		return ErrMissionAlreadyRunning
	}
	defer c.Bus.SetFinished(userID)

	if c.Metrics != nil {
		c.Metrics.MissionsStarted.Inc()
	}

	ctx, span := c.Tracer.TraceMission(ctx, userID, project)
	defer span.End()

	c.postSystemLog(ctx, userID, "Mission dispatched. Beginning autonomous execution.")
	c.emitStatus(ctx, userID, models.AgentStatusThinking)

	outcome := c.executeLoop(ctx, userID, project)

	c.emitStatus(ctx, userID, models.AgentStatusIdle)
	if c.Metrics != nil {
		c.Metrics.MissionFinished(outcome)
	}
	return nil
}

func (c *Conductor) executeLoop(ctx context.Context, userID, project string) string {
	for {
		if ctx.Err() != nil {
			return "cancelled"
		}
		if c.Bus.StopRequested(userID) {
			c.postSystemLog(ctx, userID, "Mission execution halted by user.")
			c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventAgentStatus, Status: models.AgentStatusIdle, EmittedAt: time.Now()})
			return "stopped"
		}

		pending, err := c.Store.GetTasks(ctx, userID, project, boolPtr(false))
		if err != nil {
			c.postSystemLog(ctx, userID, fmt.Sprintf("Mission log read failed: %s", err.Error()))
			c.broadcastMissionFailure(ctx, userID, err.Error())
			return "failed"
		}
		if len(pending) == 0 {
			c.handleMissionCompletion(ctx, userID, project)
			return "done"
		}

		task := pending[0]
		c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventActiveTaskUpdated, TaskID: task.ID, EmittedAt: time.Now()})

		succeeded, _ := c.runTaskWithRetries(ctx, userID, project, task)

		if !succeeded {
			if c.Bus.StopRequested(userID) || ctx.Err() != nil {
				continue
			}
			c.postChat(ctx, userID, "Aura", "I'm stuck. Rethinking my approach.", true)
			failedTask := c.reloadTask(ctx, userID, project, task)
			if err := c.replan(ctx, userID, project, failedTask); err != nil {
				c.postSystemLog(ctx, userID, fmt.Sprintf("Replanning failed: %s", err.Error()))
				c.broadcastMissionFailure(ctx, userID, err.Error())
				return "failed"
			}
			continue
		}

		select {
		case <-ctx.Done():
			return "cancelled"
		case <-time.After(interTaskYield):
		}
	}
}

// runTaskWithRetries implements spec.md §4.6 step 4: up to
// maxRetriesPerTask+1 attempts at selecting and executing a tool for task.
func (c *Conductor) runTaskWithRetries(ctx context.Context, userID, project string, task *models.Task) (bool, string) {
	var lastError string

	for attempt := 0; attempt <= maxRetriesPerTask; attempt++ {
		if c.Bus.StopRequested(userID) || ctx.Err() != nil {
			return false, lastError
		}

		invocation, err := c.selectTool(ctx, userID, project, task, lastError)
		if err != nil {
			lastError = err.Error()
			_ = c.Store.RecordFailure(ctx, userID, project, task.ID, lastError)
			if c.Metrics != nil {
				c.Metrics.MissionRetriesTotal.Inc()
			}
			continue
		}

		if invocation.ToolName == "write_file" {
			if synthErr := c.maybeSynthesizeWriteFileContent(ctx, userID, project, task, invocation); synthErr != nil {
				lastError = synthErr.Error()
				_ = c.Store.RecordFailure(ctx, userID, project, task.ID, lastError)
				if c.Metrics != nil {
					c.Metrics.MissionRetriesTotal.Inc()
				}
				continue
			}
		}

		widgetID := fmt.Sprintf("%s-%d-%d", project, task.ID, attempt)
		c.Bus.BroadcastToUser(ctx, userID, &models.Event{
			Type: models.EventToolCallInitiated, WidgetID: widgetID, ToolName: invocation.ToolName, EmittedAt: time.Now(),
		})

		start := time.Now()
		c.recordJobStart(ctx, widgetID, invocation.ToolName)
		services := tools.Services{
			NotificationBus: busNotifier{bus: c.Bus, userID: userID},
			ProjectManager:  projectRootProvider{project: c.Project, userID: userID, name: project},
			VectorContext:   vectorIndexer{vector: c.Vector},
		}
		result, runErr := c.Tools.Run(ctx, widgetID, c.Project.ProjectRoot(userID, project), *invocation, services)
		if runErr != nil {
			// Run only returns a Go error for faults outside the tool
			// contract itself (lookup and path resolution are classified
			// FAILURE results, not errors); fold it into the same shape so
			// every invocation still gets one completed event.
			result.Widget = widgetID
			result.Classified = models.ToolResult{Success: false, Message: runErr.Error()}
		}
		if c.Metrics != nil {
			status := "success"
			if !result.Classified.Success {
				status = "failure"
			}
			c.Metrics.RecordToolExecution(invocation.ToolName, status, time.Since(start))
		}
		c.recordJobFinish(ctx, widgetID, &result.Classified, "")

		c.Bus.BroadcastToUser(ctx, userID, &models.Event{
			Type: models.EventToolCallCompleted, WidgetID: widgetID, ToolName: invocation.ToolName,
			ToolResultString: result.Classified.Message, EmittedAt: time.Now(),
		})

		if result.Classified.Success {
			_, _ = c.Store.MarkDone(ctx, userID, project, task.ID)
			if c.Metrics != nil {
				c.Metrics.TaskCompleted("success")
			}
			c.postChat(ctx, userID, "Conductor", fmt.Sprintf("Task completed: %s", task.Description), false)
			if result.Mutated {
				c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventFileTreeUpdated, EmittedAt: time.Now()})
			}
			return true, ""
		}

		lastError = result.Classified.Message
		_ = c.Store.RecordFailure(ctx, userID, project, task.ID, lastError)
		if c.Metrics != nil {
			c.Metrics.TaskCompleted("failure")
		}
		c.postChat(ctx, userID, "Conductor", fmt.Sprintf("Task failed, retrying. Error: %s", lastError), true)
	}

	return false, lastError
}

// selectTool is the Conductor's "brain": the Coder-role LLM call that
// translates task into a single ToolInvocation, grounded on
// ConductorService._get_tool_call_for_task.
func (c *Conductor) selectTool(ctx context.Context, userID, project string, task *models.Task, lastError string) (*models.ToolInvocation, error) {
	if task.ToolCall != nil {
		return task.ToolCall.Clone(), nil
	}

	allTasks, err := c.Store.GetTasks(ctx, userID, project, nil)
	if err != nil {
		return nil, fmt.Errorf("read mission log: %w", err)
	}

	currentDescription := task.Description
	if lastError != "" {
		currentDescription += fmt.Sprintf("\n\n**PREVIOUS ATTEMPT FAILED!** Last error: `%s`. You MUST try a different approach.", lastError)
	}

	historyLines := make([]llmcontext.Message, 0, len(allTasks))
	for _, t := range allTasks {
		state := "Pending"
		if t.Done {
			state = "Done"
		}
		historyLines = append(historyLines, llmcontext.Message{
			Role:    "history",
			Content: fmt.Sprintf("- ID %d (%s): %s", t.ID, state, t.Description),
		})
	}
	historyStr := renderHistory(historyLines)
	if historyStr == "" {
		historyStr = "This is the first task."
	}

	fileTree, err := c.Project.FileTree(ctx, userID, project)
	if err != nil {
		fileTree = nil
	}
	fileStructure := strings.Join(fileTree, "\n")
	if fileStructure == "" {
		fileStructure = "The project is currently empty."
	}

	vectorContext := "Vector context (RAG) is currently disabled."
	if c.Vector != nil {
		if snippets, err := c.Vector.Query(ctx, userID, project, currentDescription); err == nil && snippets != "" {
			vectorContext = snippets
		}
	}

	availableTools := make([]string, 0)
	for _, d := range c.Tools.Descriptors() {
		if d.Name == "write_file" {
			continue
		}
		availableTools = append(availableTools, fmt.Sprintf("%s: %s", d.Name, d.Description))
	}
	sort.Strings(availableTools)

	prompt := prompts.Coder(prompts.CoderData{
		CurrentTask:          currentDescription,
		MissionLog:           historyStr,
		FileStructure:        fileStructure,
		RelevantCodeSnippets: vectorContext,
		AvailableTools:       strings.Join(availableTools, "\n"),
	})

	messages := []llmgateway.Message{{Role: "user", Content: prompt}}
	reply, err := c.Gateway.Complete(ctx, userID, models.RoleCoder, messages, true, "", nil)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(reply, "Error:") {
		return nil, fmt.Errorf("tool-selector call failed: %s", reply)
	}

	var raw struct {
		ToolName  string         `json:"tool_name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := jsonextract.Into(reply, &raw); err != nil || raw.ToolName == "" {
		return nil, fmt.Errorf("could not determine a tool call for task: %s", task.Description)
	}

	return &models.ToolInvocation{ToolName: raw.ToolName, Arguments: raw.Arguments}, nil
}

// maybeSynthesizeWriteFileContent implements spec.md §4.6 step 4b: when the
// selected tool is write_file and the Coder left content empty but supplied
// task_description, synthesize the file's content with a dedicated
// code-generation call.
func (c *Conductor) maybeSynthesizeWriteFileContent(ctx context.Context, userID, project string, task *models.Task, invocation *models.ToolInvocation) error {
	content, _ := invocation.Arguments["content"].(string)
	taskDescription, _ := invocation.Arguments["task_description"].(string)
	if content != "" || taskDescription == "" {
		delete(invocation.Arguments, "task_description")
		return nil
	}

	path, _ := invocation.Arguments["path"].(string)

	dataContract := ""
	if c.Project != nil {
		if dc, err := c.Project.DataContract(ctx, userID, project); err == nil {
			dataContract = dc
		}
	}

	fileTree, _ := c.Project.FileTree(ctx, userID, project)

	goal, _ := c.Store.InitialGoal(ctx, userID, project)

	prompt := prompts.CodeGen(prompts.CodeGenData{
		UserIdea:            goal,
		Path:                path,
		TaskDescription:     taskDescription,
		DataContract:        dataContract,
		RelevantPlanContext: task.Description,
		FileTree:            strings.Join(fileTree, "\n"),
	})

	sink := func(recordType, content, filePath string) {
		if recordType != "chunk" {
			return
		}
		c.Bus.BroadcastToUser(ctx, userID, &models.Event{
			Type: models.EventCodeStreamChunk, CodeFilePath: filePath, CodeChunk: content, EmittedAt: time.Now(),
		})
	}

	messages := []llmgateway.Message{{Role: "user", Content: prompt}}
	reply, err := c.Gateway.Complete(ctx, userID, models.RoleCoder, messages, false, path, sink)
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "Error:") {
		return fmt.Errorf("code generation failed: %s", reply)
	}

	invocation.Arguments["content"] = stripCodeFences(reply)
	delete(invocation.Arguments, "task_description")
	return nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.SplitN(s, "\n", 2)
	if len(lines) < 2 {
		return s
	}
	body := lines[1]
	body = strings.TrimSuffix(strings.TrimRight(body, "\n"), "```")
	return strings.TrimSpace(body)
}

func (c *Conductor) replan(ctx context.Context, userID, project string, failedTask *models.Task) error {
	if c.Metrics != nil {
		c.Metrics.MissionReplansTotal.Inc()
	}

	allTasks, err := c.Store.GetTasks(ctx, userID, project, nil)
	if err != nil {
		return err
	}
	goal, err := c.Store.InitialGoal(ctx, userID, project)
	if err != nil {
		return err
	}

	plan, err := c.Planner.RunReplanner(ctx, userID, goal, allTasks, failedTask)
	if err != nil {
		return err
	}

	if _, err := c.Store.ReplaceTasksFrom(ctx, userID, project, failedTask.ID, plan.FinalPlan); err != nil {
		return err
	}

	c.postChat(ctx, userID, "Aura", "I have a new plan. Resuming execution.", false)
	return nil
}

func (c *Conductor) handleMissionCompletion(ctx context.Context, userID, project string) {
	doneTasks, err := c.Store.GetTasks(ctx, userID, project, boolPtr(true))
	if err != nil {
		doneTasks = nil
	}

	summary := c.Planner.GenerateMissionSummary(ctx, userID, doneTasks)
	c.postChat(ctx, userID, "Aura", summary, false)
	c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventMissionSuccess, EmittedAt: time.Now()})
}

func (c *Conductor) broadcastMissionFailure(ctx context.Context, userID, reason string) {
	c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventMissionFailure, Reason: reason, EmittedAt: time.Now()})
}

func (c *Conductor) postChat(ctx context.Context, userID, sender, message string, isError bool) {
	if strings.TrimSpace(message) == "" {
		return
	}
	eventType := models.EventSystemLog
	if strings.EqualFold(sender, "aura") && !isError {
		eventType = models.EventAuraResponse
	}
	c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: eventType, Content: message, IsError: isError, EmittedAt: time.Now()})
}

func (c *Conductor) postSystemLog(ctx context.Context, userID, message string) {
	c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventSystemLog, Content: message, EmittedAt: time.Now()})
}

func (c *Conductor) emitStatus(ctx context.Context, userID string, status models.AgentStatus) {
	c.Bus.BroadcastToUser(ctx, userID, &models.Event{Type: models.EventAgentStatus, Status: status, EmittedAt: time.Now()})
}

// reloadTask re-reads task's current persisted state (in particular its
// LastError, which RecordFailure may have updated in the store without
// touching the caller's in-memory copy) before handing it to the Replanner.
func (c *Conductor) reloadTask(ctx context.Context, userID, project string, task *models.Task) *models.Task {
	all, err := c.Store.GetTasks(ctx, userID, project, nil)
	if err != nil {
		return task
	}
	for _, t := range all {
		if t.ID == task.ID {
			return t
		}
	}
	return task
}

func boolPtr(b bool) *bool { return &b }
