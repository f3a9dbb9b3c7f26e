// Package tools implements the Tool Runner (C4): the sandboxed catalog of
// effects the agent can produce, argument path resolution, service
// injection, and success/failure classification.
//
// Grounded on the agent.Tool interface (Name/Description/Schema/Execute)
// and its ToolRegistry, generalized to
// carry a static ToolDescriptor (models.ToolDescriptor) alongside each
// Handler so the runner can resolve path_param_keys and inject required
// services without reflection, per spec.md §4.4.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/CarpseDeam/aura-backend/internal/tools/files"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// Handler executes one tool invocation's resolved arguments and returns the
// raw, unclassified result. Handlers never classify their own output —
// Classify does that uniformly for every tool, per spec.md §4.4's note that
// the original source had inconsistent per-tool checks.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Services bundles the collaborators a tool's RequiredServices may name.
// A handler receives only the services it declared; the runner injects
// them into the handler's args map under the same key names the tool
// descriptor declares in RequiredServices.
type Services struct {
	ProjectManager any
	MissionLog     any
	VectorContext  any
	LLMGateway     any
	NotificationBus any
}

type registeredTool struct {
	descriptor models.ToolDescriptor
	handler    Handler
}

// Registry is the process-wide, immutable-after-init tool catalog plus the
// mutex-guarded map needed for the one runtime mutator: create_new_tool.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry returns an empty registry. Use catalog.go's Register* helpers
// or RegisterRequiredTools to populate it at process init.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a tool to the catalog. Safe to call after init time too —
// this is the mechanism create_new_tool uses to add a ToolDescriptor at
// runtime, per spec.md §4.4's meta-tool.
func (r *Registry) Register(descriptor models.ToolDescriptor, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[descriptor.Name] = registeredTool{descriptor: descriptor, handler: handler}
}

// Descriptor returns the ToolDescriptor for name, if registered.
func (r *Registry) Descriptor(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t.descriptor, ok
}

// Descriptors returns every registered tool's descriptor, for exposing the
// catalog's schemas to the LLM tool selector.
func (r *Registry) Descriptors() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.descriptor)
	}
	return out
}

// InvocationResult is the Tool Runner's dispatch outcome: the classified
// Result plus the raw value the caller returns unmodified per spec.md §4.4
// step 7.
type InvocationResult struct {
	Widget      string
	DisplayArgs map[string]any
	Classified  models.ToolResult
	Raw         any
	Mutated     bool
}

// Run executes invocation against projectRoot with the given Services,
// implementing the six-step contract of spec.md §4.4: lookup, argument
// resolution (path + service injection), invocation, classification, and
// the file_tree_updated mutation signal. widgetID identifies this
// invocation for the tool_call_initiated/completed event pair.
//
// Unknown tool names and path-escape attempts are classified as FAILURE
// InvocationResults rather than returned as Go errors, per spec.md §7: the
// caller broadcasts tool_call_completed for every invocation uniformly,
// never skipping the pairing event because lookup or path resolution
// failed before the handler ran.
func (r *Registry) Run(ctx context.Context, widgetID, projectRoot string, invocation models.ToolInvocation, services Services) (InvocationResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[invocation.ToolName]
	r.mu.RUnlock()
	if !ok {
		msg := fmt.Sprintf("unknown tool %q", invocation.ToolName)
		return InvocationResult{
			Widget:      widgetID,
			DisplayArgs: invocation.Arguments,
			Classified:  models.ToolResult{Success: false, Message: msg},
		}, nil
	}

	resolver := files.Resolver{Root: projectRoot}

	execArgs := make(map[string]any, len(invocation.Arguments))
	displayArgs := make(map[string]any, len(invocation.Arguments))
	for k, v := range invocation.Arguments {
		execArgs[k] = v
		displayArgs[k] = v
	}

	for _, key := range tool.descriptor.PathParamKeys {
		raw, ok := execArgs[key]
		if !ok {
			continue
		}
		str, ok := raw.(string)
		if !ok || str == "" {
			continue
		}
		resolved, err := resolver.Resolve(str)
		if err != nil {
			msg := fmt.Sprintf("argument %q escapes project root: %s", key, err.Error())
			return InvocationResult{
				Widget:      widgetID,
				DisplayArgs: displayArgs,
				Classified:  models.ToolResult{Success: false, Message: msg},
			}, nil
		}
		execArgs[key] = resolved
		displayArgs[key] = str
	}

	injectServices(execArgs, tool.descriptor.RequiredServices, services)
	for _, svc := range tool.descriptor.RequiredServices {
		delete(displayArgs, svc)
	}

	raw, err := tool.handler(ctx, execArgs)

	result := InvocationResult{
		Widget:      widgetID,
		DisplayArgs: displayArgs,
		Raw:         raw,
	}

	if err != nil {
		result.Classified = models.ToolResult{Success: false, Message: err.Error()}
		return result, nil
	}

	result.Classified = Classify(raw)

	if result.Classified.Success && tool.descriptor.Mutates {
		result.Mutated = true
	}

	return result, nil
}

func injectServices(args map[string]any, required []string, services Services) {
	for _, name := range required {
		switch name {
		case "project_manager":
			args[name] = services.ProjectManager
		case "mission_log":
			args[name] = services.MissionLog
		case "vector_context":
			args[name] = services.VectorContext
		case "llm_gateway":
			args[name] = services.LLMGateway
		case "notification_bus":
			args[name] = services.NotificationBus
		}
	}
}

