// Package planner implements the Planner Pipeline (C5): three independent
// LLM-call stages — Intent Classifier, Architect, Sequencer — plus the
// Replanner invoked by the Conductor on retry-budget exhaustion, and the
// mission summary generator invoked on mission completion.
//
// Grounded on the original source's DevelopmentTeamService
// (run_aura_planner_workflow, run_strategic_replan, generate_mission_summary,
// _parse_json_response), translated from one monolithic service class into
// one function per stage, each issuing a single llmgateway.Gateway.Complete
// call and parsing its result with internal/planner/jsonextract.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/CarpseDeam/aura-backend/internal/llmgateway"
	"github.com/CarpseDeam/aura-backend/internal/planner/jsonextract"
	"github.com/CarpseDeam/aura-backend/internal/prompts"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// Intent is the Intent Classifier's one-key output, spec.md §4.5.
type Intent string

const (
	IntentPlan Intent = "PLAN"
	IntentChat Intent = "CHAT"
)

// Pipeline bundles the Gateway every stage calls through. All stages are
// plain functions taking *Pipeline as receiver so they share one Gateway
// without each needing its own constructor.
type Pipeline struct {
	Gateway *llmgateway.Gateway
}

// New constructs a Pipeline bound to gw.
func New(gw *llmgateway.Gateway) *Pipeline {
	return &Pipeline{Gateway: gw}
}

func isErrorReply(reply string) bool {
	return strings.HasPrefix(reply, "Error:")
}

// ClassifyIntent runs the Intent Classifier stage. On any malformed or
// error output it defaults to CHAT, per spec.md §4.5's explicit fallback
// rule — the Conductor should never be blocked on an ambiguous classification.
func (p *Pipeline) ClassifyIntent(ctx context.Context, userID string, conversation []llmgateway.Message, latestMessage string) Intent {
	var history strings.Builder
	for _, m := range conversation {
		fmt.Fprintf(&history, "%s: %s\n", m.Role, m.Content)
	}

	messages := []llmgateway.Message{{
		Role: "user",
		Content: prompts.IntentClassifier(prompts.IntentData{
			History:       history.String(),
			LatestMessage: latestMessage,
		}),
	}}

	reply, err := p.Gateway.Complete(ctx, userID, models.RoleIntent, messages, true, "", nil)
	if err != nil || isErrorReply(reply) {
		return IntentChat
	}

	var out struct {
		Intent string `json:"intent"`
	}
	if err := jsonextract.Into(reply, &out); err != nil {
		return IntentChat
	}

	switch strings.ToUpper(strings.TrimSpace(out.Intent)) {
	case string(IntentPlan):
		return IntentPlan
	default:
		return IntentChat
	}
}

// ArchitectResult is the Architect stage's validated output plus the two
// post-hoc law checks spec.md §4.5 calls for re-checking beyond the prompt.
type ArchitectResult struct {
	Blueprint         models.Blueprint
	BackendOnlyOK     bool
	ProportionalityOK bool
}

// RunArchitect runs the Architect stage for projectName/userIdea and
// re-checks the Backend-only-focus and Proportionality laws against the
// final blueprint. Proportionality enforcement beyond this advisory flag is
// left to the prompt, per spec.md §9's Open Question resolution (see
// DESIGN.md).
// sink, if non-nil, receives the draft_blueprint/critique/final_blueprint
// phase records the external service emits while reasoning, per spec.md
// §4.3's "Phased progress for JSON plans" note.
func (p *Pipeline) RunArchitect(ctx context.Context, userID, projectName, userIdea string, sink llmgateway.StreamSink) (ArchitectResult, error) {
	messages := []llmgateway.Message{{Role: "user", Content: prompts.Architect(prompts.ArchitectData{
		ProjectName: projectName,
		UserIdea:    userIdea,
	})}}

	reply, err := p.Gateway.Complete(ctx, userID, models.RoleArchitect, messages, true, "", sink)
	if err != nil {
		return ArchitectResult{}, err
	}
	if isErrorReply(reply) {
		return ArchitectResult{}, fmt.Errorf("architect stage failed: %s", reply)
	}

	var bp models.Blueprint
	if err := jsonextract.Into(reply, &bp); err != nil {
		return ArchitectResult{}, fmt.Errorf("architect returned malformed blueprint: %w", err)
	}

	return ArchitectResult{
		Blueprint:         bp,
		BackendOnlyOK:     checkBackendOnly(userIdea, bp.FinalBlueprint),
		ProportionalityOK: checkProportionality(userIdea, bp.FinalBlueprint),
	}, nil
}

var uiKeywords = []string{"ui", "frontend", "web page", "website", "html", "react", "vue", "dashboard", "gui"}

func checkBackendOnly(userIdea string, body models.BlueprintBody) bool {
	idea := strings.ToLower(userIdea)
	wantsUI := false
	for _, kw := range uiKeywords {
		if strings.Contains(idea, kw) {
			wantsUI = true
			break
		}
	}
	if wantsUI {
		return true
	}
	for _, dep := range body.Dependencies {
		depLower := strings.ToLower(dep)
		if strings.Contains(depLower, "react") || strings.Contains(depLower, "template") || strings.Contains(depLower, "static") {
			return false
		}
	}
	return true
}

func checkProportionality(userIdea string, body models.BlueprintBody) bool {
	idea := strings.ToLower(userIdea)
	impliesComplexity := strings.Contains(idea, "endpoint") || strings.Contains(idea, "auth") ||
		strings.Contains(idea, "database") || strings.Contains(idea, "persist") || strings.Contains(idea, "model")
	if !impliesComplexity {
		return true
	}
	return len(body.Components) >= 2
}

// RunSequencer runs the Sequencer stage against the Architect's final
// blueprint, returning the ordered plan of human-readable task sentences.
func (p *Pipeline) RunSequencer(ctx context.Context, userID string, blueprint models.BlueprintBody, sink llmgateway.StreamSink) (models.Plan, error) {
	messages := []llmgateway.Message{{Role: "user", Content: prompts.Sequencer(prompts.SequencerData{
		Summary:      blueprint.Summary,
		Components:   blueprint.Components,
		Dependencies: blueprint.Dependencies,
	})}}

	reply, err := p.Gateway.Complete(ctx, userID, models.RoleSequencer, messages, true, "", sink)
	if err != nil {
		return models.Plan{}, err
	}
	if isErrorReply(reply) {
		return models.Plan{}, fmt.Errorf("sequencer stage failed: %s", reply)
	}

	var plan models.Plan
	if err := jsonextract.Into(reply, &plan); err != nil {
		return models.Plan{}, fmt.Errorf("sequencer returned malformed plan: %w", err)
	}
	if len(plan.FinalPlan) == 0 {
		return models.Plan{}, fmt.Errorf("sequencer produced an empty plan")
	}
	return plan, nil
}

// RunReplanner runs the Replanner stage after a task has exhausted its
// retry budget. It MUST address the failed task's specific error in its
// first returned step — that obligation lives in the prompt, matching the
// original AURA_REPLANNER_PROMPT's instruction.
func (p *Pipeline) RunReplanner(ctx context.Context, userID, originalGoal string, missionLog []*models.Task, failedTask *models.Task) (models.Plan, error) {
	var logStr strings.Builder
	for _, t := range missionLog {
		state := "Pending"
		if t.Done {
			state = "Done"
		}
		fmt.Fprintf(&logStr, "- ID %d (%s): %s\n", t.ID, state, t.Description)
	}

	errorMessage := failedTask.LastError
	if errorMessage == "" {
		errorMessage = "No specific error message was recorded."
	}

	messages := []llmgateway.Message{{Role: "user", Content: prompts.Replanner(prompts.ReplannerData{
		OriginalGoal: originalGoal,
		MissionLog:   logStr.String(),
		FailedTask:   fmt.Sprintf("ID %d: %s", failedTask.ID, failedTask.Description),
		ErrorMessage: errorMessage,
	})}}

	reply, err := p.Gateway.Complete(ctx, userID, models.RolePlanner, messages, true, "", nil)
	if err != nil {
		return models.Plan{}, err
	}
	if isErrorReply(reply) {
		return models.Plan{}, fmt.Errorf("replanner stage failed: %s", reply)
	}

	var plan models.Plan
	if err := jsonextract.Into(reply, &plan); err != nil {
		return models.Plan{}, fmt.Errorf("replanner returned malformed plan: %w", err)
	}
	if len(plan.FinalPlan) == 0 {
		return models.Plan{}, fmt.Errorf("replanner returned an empty plan")
	}
	return plan, nil
}

// GenerateMissionSummary runs the mission-completion summary stage over the
// list of done tasks. Returns the fallback "Mission accomplished!" string
// when there are no done tasks or the LLM returns a blank reply, matching
// the original generate_mission_summary's fallback.
func (p *Pipeline) GenerateMissionSummary(ctx context.Context, userID string, doneTasks []*models.Task) string {
	var descriptions strings.Builder
	count := 0
	for _, t := range doneTasks {
		if !t.Done {
			continue
		}
		fmt.Fprintf(&descriptions, "- %s\n", t.Description)
		count++
	}
	if count == 0 {
		return "Mission accomplished!"
	}

	messages := []llmgateway.Message{{Role: "user", Content: prompts.Summary(prompts.SummaryData{
		CompletedTasks: descriptions.String(),
	})}}
	reply, err := p.Gateway.Complete(ctx, userID, models.RoleChat, messages, false, "", nil)
	if err != nil || isErrorReply(reply) {
		return "Mission accomplished!"
	}
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return "Mission accomplished!"
	}
	return trimmed
}
