// Package prompts holds the Go text/template prompt bodies for every
// Planner Pipeline stage, grounded on the original source's
// src/prompts/creative.py and src/prompts/coder.py constants (the
// AURA_PLANNER_PROMPT, AURA_REPLANNER_PROMPT, and AURA_MISSION_SUMMARY_PROMPT
// templates), adapted to spec.md §4.5's redefined output shape: the
// Architect now emits {draft_blueprint, critique, final_blueprint} rather
// than the original's {draft_plan, critique, final_plan, dependencies}, and
// the Sequencer is a dedicated stage rather than folded into the planner
// prompt.
package prompts

import (
	"strings"
	"text/template"
)

var (
	architectTemplate = template.Must(template.New("architect").Parse(strings.TrimSpace(`
You are Aura, a Maestro AI Software Architect. You are a partner to a solo developer shipping production Go services. Your architectural choices flow from the nature of the project: a simple script gets a simple layout, a production service gets package boundaries, error handling, and tests from day one.

**Backend-only focus (unbreakable law):** unless the goal below explicitly calls for a UI, frontend, or web page, design a backend-only system. Never introduce template engines, static asset pipelines, or frontend framework dependencies unless the goal names one.

**Proportionality (unbreakable law):** if the goal implies two or more HTTP endpoints, persistence, authentication, or multiple data models, the design MUST be modular (multiple packages/files). A single-file layout is permitted only for genuinely trivial goals.

**CRITICAL OUTPUT MANDATE: THE SELF-CRITIQUE CHAIN OF THOUGHT**
Produce a single JSON object with exactly these keys: draft_blueprint, critique, final_blueprint.
- draft_blueprint: your first-pass design, an object with "summary" (string), "components" (list of strings), "dependencies" (list of strings).
- critique: a ruthless self-critique of the draft — naive choices, scalability gaps, missing error handling.
- final_blueprint: the improved design that directly addresses the critique, same shape as draft_blueprint.

Project: {{.ProjectName}}
User's goal: {{.UserIdea}}

Respond with only the JSON object.
`)))

	sequencerTemplate = template.Must(template.New("sequencer").Parse(strings.TrimSpace(`
You are the Sequencer. Turn the following architectural blueprint into an ordered list of concise, single-sentence tasks a coding agent will execute one at a time.

**Phased creation (unbreakable order):**
1. Create all directories first.
2. Create all empty files (and package-init files where the language requires them).
3. Implement the body of each file.

**Rules:**
- Each task is one plain sentence. No markdown, no tree diagrams, no bullet glyphs.
- Never emit a task that edits a dependency manifest (e.g. "add library X to go.mod") — dependency tooling is invoked separately, on demand, by the tool catalog.

Blueprint summary: {{.Summary}}
Components: {{.Components}}
Dependencies (for context only — do not emit tasks for these): {{.Dependencies}}

Respond with a single JSON object: {"final_plan": ["task one", "task two", ...]}.
`)))

	replannerTemplate = template.Must(template.New("replanner").Parse(strings.TrimSpace(`
You are an expert AI project manager specializing in recovering from failed plans. A previous plan has hit a roadblock.

**ORIGINAL GOAL:**
{{.OriginalGoal}}

**MISSION HISTORY:**
{{.MissionLog}}

**THE FAILED TASK:**
{{.FailedTask}}

**THE FINAL ERROR:**
{{.ErrorMessage}}

**RE-PLANNING DIRECTIVES (UNBREAKABLE LAWS):**
1. Your new plan's FIRST step MUST directly address the error above — if it was a missing dependency, add it first; if it was a code defect, fix the file first.
2. The plan must still complete the work the failed task was trying to do, not just patch the error.
3. You may reuse, reorder, or discard any task that came after the failed task.

Respond with a single JSON object: {"plan": ["task one", "task two", ...]}.
`)))

	summaryTemplate = template.Must(template.New("summary").Parse(strings.TrimSpace(`
You are Aura, an AI Software Engineer. You just completed a development mission. Write a concise, friendly, user-facing paragraph summarizing the work, starting with "Mission accomplished!".

**COMPLETED TASKS:**
{{.CompletedTasks}}

Respond with only the summary paragraph.
`)))

	intentTemplate = template.Must(template.New("intent").Parse(strings.TrimSpace(`
Classify the user's latest message as either a request to build or modify the project (PLAN) or a conversational question that needs no code changes (CHAT).

Conversation so far:
{{.History}}

Latest message: {{.LatestMessage}}

Respond with a single JSON object: {"intent": "PLAN"} or {"intent": "CHAT"}.
`)))

	coderTemplate = template.Must(template.New("coder").Parse(strings.TrimSpace(`
You are an expert programmer and a specialized AI agent responsible for translating a single human-readable task into a single, precise, machine-readable tool call in JSON format.

**EXAMPLE OF A PERFECT RESPONSE:**
` + "```json" + `
{"tool_name": "write_file", "arguments": {"path": "internal/api/auth.go", "task_description": "Add an HTTP handler that registers a new user, hashing the password and storing the record."}}
` + "```" + `

**CURRENT TASK:**
{{.CurrentTask}}

**MISSION LOG (HISTORY):**
{{.MissionLog}}

**PROJECT FILE STRUCTURE:**
{{.FileStructure}}

**RELEVANT CODE SNIPPETS:**
{{.RelevantCodeSnippets}}

**AVAILABLE TOOLS:**
{{.AvailableTools}}

Respond with a single, raw JSON object: {"tool_name": "...", "arguments": {...}}.
`)))

	codeGenTemplate = template.Must(template.New("codegen").Parse(strings.TrimSpace(`
You are Aura, a Maestro AI Coder. You are executing one step of a larger plan. Generate the complete, production-ready source code for a single file.

**High-level mission goal:** {{.UserIdea}}
**File path to generate:** {{.Path}}
**Task description for this file:** {{.TaskDescription}}

**LAW #1 — THE DATA CONTRACT IS SACRED.** Adhere to the naming, types, and structure of any existing schema/model files shown below. Never invent fields not defined there.
{{.DataContract}}

**LAW #2 — THE PLAN IS ABSOLUTE.** Relevant plan context (previous, current, next task):
{{.RelevantPlanContext}}

Project file manifest (use for import correctness):
{{.FileTree}}

**LAW #3 — DO NOT INVENT IMPORTS.** Only import the standard library, dependencies already declared in go.mod, or other files present in the manifest above.

**LAW #4 — FULL AND COMPLETE IMPLEMENTATION.** No placeholders, no TODOs standing in for real logic.

Respond with only the raw source code for {{.Path}}, no markdown fences, no commentary.
`)))
)

// ArchitectData fills the Architect prompt template.
type ArchitectData struct {
	ProjectName string
	UserIdea    string
}

// Architect renders the Architect stage prompt.
func Architect(data ArchitectData) string {
	return render(architectTemplate, data)
}

// SequencerData fills the Sequencer prompt template.
type SequencerData struct {
	Summary      string
	Components   []string
	Dependencies []string
}

// Sequencer renders the Sequencer stage prompt.
func Sequencer(data SequencerData) string {
	return render(sequencerTemplate, data)
}

// ReplannerData fills the Replanner prompt template.
type ReplannerData struct {
	OriginalGoal string
	MissionLog   string
	FailedTask   string
	ErrorMessage string
}

// Replanner renders the Replanner stage prompt.
func Replanner(data ReplannerData) string {
	return render(replannerTemplate, data)
}

// SummaryData fills the mission summary prompt template.
type SummaryData struct {
	CompletedTasks string
}

// Summary renders the mission summary prompt.
func Summary(data SummaryData) string {
	return render(summaryTemplate, data)
}

// IntentData fills the Intent Classifier prompt template.
type IntentData struct {
	History       string
	LatestMessage string
}

// IntentClassifier renders the Intent Classifier prompt.
func IntentClassifier(data IntentData) string {
	return render(intentTemplate, data)
}

// CoderData fills the tool-selector (Coder role) prompt template.
type CoderData struct {
	CurrentTask          string
	MissionLog           string
	FileStructure        string
	RelevantCodeSnippets string
	AvailableTools       string
}

// Coder renders the Conductor's tool-selector prompt.
func Coder(data CoderData) string {
	return render(coderTemplate, data)
}

// CodeGenData fills the write_file content-synthesis prompt template.
type CodeGenData struct {
	UserIdea            string
	Path                string
	TaskDescription     string
	DataContract        string
	RelevantPlanContext string
	FileTree            string
}

// CodeGen renders the write_file content-synthesis prompt.
func CodeGen(data CodeGenData) string {
	return render(codeGenTemplate, data)
}

func render(t *template.Template, data any) string {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		panic("prompts: template execution failed: " + err.Error())
	}
	return b.String()
}
