package models

// ToolDescriptor is the static, process-init-time registration of one tool
// in the catalog: its name, its JSON argument schema, and the two sets the
// Tool Runner needs to build an invocation's execution arguments without
// reflection — which services to inject, and which argument keys are
// filesystem paths that must be resolved against the project root.
type ToolDescriptor struct {
	Name        string
	Description string

	// Schema is the JSON schema for Arguments, exposed to the LLM tool
	// selector and used for basic shape validation before execution.
	Schema map[string]any

	// RequiredServices names the injected collaborators this tool needs,
	// drawn from {project_manager, mission_log, vector_context,
	// llm_gateway, notification_bus}.
	RequiredServices []string

	// PathParamKeys enumerates argument names whose string values are
	// resolved against the active project root before execution.
	PathParamKeys []string

	// Mutates marks tools whose successful execution should trigger a
	// file_tree_updated event even when PathParamKeys is empty (e.g. a
	// tool that deletes by name rather than by path).
	Mutates bool
}
