package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/modfile"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// indexToolName is the pre-canned tool call the Mission Log seeds as the
// first task of every plan, per spec.md §4.1/§4.12.
const indexToolName = "index_project_context"

const defaultShellTimeout = 120 * time.Second

// RegisterRequiredTools populates registry with the Required Tools list
// named in spec.md §4.4, plus the supplemented index_project_context tool
// (SPEC_FULL.md §4.12). Handlers are deliberately simple: the Tool Runner's
// path resolution and result classification carry the contract, not the
// tool bodies themselves — matching the original source's thin per-tool
// functions in its tools/ package.
func RegisterRequiredTools(r *Registry) {
	r.Register(models.ToolDescriptor{
		Name:        "write_file",
		Description: "Writes content to a file, creating parent directories as needed.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"path", "content"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleWriteFile)

	r.Register(models.ToolDescriptor{
		Name:        "read_file",
		Description: "Reads the full content of a file.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		PathParamKeys: []string{"path"},
	}, handleReadFile)

	r.Register(models.ToolDescriptor{
		Name:        "list_files",
		Description: "Lists the immediate contents of a directory.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		PathParamKeys: []string{"path"},
	}, handleListFiles)

	r.Register(models.ToolDescriptor{
		Name:        "create_directory",
		Description: "Creates a directory and any missing parents.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleCreateDirectory)

	r.Register(models.ToolDescriptor{
		Name:        "delete_directory",
		Description: "Recursively removes a directory.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleDeleteDirectory)

	r.Register(models.ToolDescriptor{
		Name:        "delete_file",
		Description: "Removes a single file.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleDeleteFile)

	r.Register(models.ToolDescriptor{
		Name:        "copy_file",
		Description: "Copies a file from source to destination.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source":      map[string]any{"type": "string"},
				"destination": map[string]any{"type": "string"},
			},
			"required": []string{"source", "destination"},
		},
		PathParamKeys: []string{"source", "destination"},
		Mutates:       true,
	}, handleCopyFile)

	r.Register(models.ToolDescriptor{
		Name:        "move_file",
		Description: "Moves or renames a file.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source":      map[string]any{"type": "string"},
				"destination": map[string]any{"type": "string"},
			},
			"required": []string{"source", "destination"},
		},
		PathParamKeys: []string{"source", "destination"},
		Mutates:       true,
	}, handleMoveFile)

	r.Register(models.ToolDescriptor{
		Name:        "run_shell_command",
		Description: "Runs a shell command inside the project root with a bounded timeout.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command":         map[string]any{"type": "string"},
				"timeout_seconds": map[string]any{"type": "number"},
			},
			"required": []string{"command"},
		},
		Mutates: true,
	}, handleRunShellCommand)

	r.Register(models.ToolDescriptor{
		Name:        "add_dependency_to_go_mod",
		Description: "Adds a require directive to the project's go.mod (the Go analog of the original add_dependency_to_requirements tool).",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"module":      map[string]any{"type": "string"},
				"version":     map[string]any{"type": "string"},
				"go_mod_path": map[string]any{"type": "string", "default": "go.mod"},
			},
			"required": []string{"module", "version"},
		},
		PathParamKeys: []string{"go_mod_path"},
		Mutates:       true,
	}, handleAddDependencyToGoMod)

	r.Register(models.ToolDescriptor{
		Name:        "request_user_input",
		Description: "Surfaces a question to the user and suspends the mission pending a reply.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"question": map[string]any{"type": "string"}},
			"required":   []string{"question"},
		},
		RequiredServices: []string{"notification_bus"},
	}, handleRequestUserInput)

	r.Register(models.ToolDescriptor{
		Name:        indexToolName,
		Description: "Builds the vector-searchable contextual map of the project used by later tasks.",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		RequiredServices: []string{"vector_context", "project_manager"},
	}, handleIndexProjectContext)

	r.Register(models.ToolDescriptor{
		Name:        "create_package_init",
		Description: "Creates a package doc file, the Go analog of the original create_package_init.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":         map[string]any{"type": "string"},
				"package_name": map[string]any{"type": "string"},
			},
			"required": []string{"path", "package_name"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleCreatePackageInit)

	r.Register(models.ToolDescriptor{
		Name:        "add_function_to_file",
		Description: "Parses a Go file and appends a new top-level function declaration.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"function_code": map[string]any{"type": "string"},
			},
			"required": []string{"path", "function_code"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddFunctionToFile)

	r.Register(models.ToolDescriptor{
		Name:        "add_class_to_file",
		Description: "Parses a Go file and appends a new top-level type declaration (the Go analog of a class).",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string"},
				"type_code": map[string]any{"type": "string"},
			},
			"required": []string{"path", "type_code"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddClassToFile)

	r.Register(models.ToolDescriptor{
		Name:        "add_method_to_class",
		Description: "Appends a method with the given receiver type to a Go file.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"receiver_type": map[string]any{"type": "string"},
				"method_code":   map[string]any{"type": "string"},
			},
			"required": []string{"path", "receiver_type", "method_code"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddMethodToClass)

	r.Register(models.ToolDescriptor{
		Name:        "add_import",
		Description: "Adds an import to a Go file's import block, or creates one.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string"},
				"import_path": map[string]any{"type": "string"},
				"alias":       map[string]any{"type": "string"},
			},
			"required": []string{"path", "import_path"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddImport)

	r.Register(models.ToolDescriptor{
		Name:        "add_parameter_to_function",
		Description: "Appends a parameter to an existing function's signature.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"function_name": map[string]any{"type": "string"},
				"param_name":    map[string]any{"type": "string"},
				"param_type":    map[string]any{"type": "string"},
			},
			"required": []string{"path", "function_name", "param_name", "param_type"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddParameterToFunction)

	r.Register(models.ToolDescriptor{
		Name:        "add_attribute_to_init",
		Description: "Appends a field to an existing struct (the Go analog of adding an attribute in __init__).",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string"},
				"struct_name": map[string]any{"type": "string"},
				"field_name":  map[string]any{"type": "string"},
				"field_type":  map[string]any{"type": "string"},
			},
			"required": []string{"path", "struct_name", "field_name", "field_type"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddAttributeToInit)

	r.Register(models.ToolDescriptor{
		Name:        "add_decorator_to_function",
		Description: "Records a decorator annotation as a structured doc comment above a function, since Go has no decorator syntax.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"function_name": map[string]any{"type": "string"},
				"decorator":     map[string]any{"type": "string"},
			},
			"required": []string{"path", "function_name", "decorator"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAddDecoratorToFunction)

	r.Register(models.ToolDescriptor{
		Name:        "rename_symbol_in_file",
		Description: "Renames every identifier matching old_name to new_name within one file.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":     map[string]any{"type": "string"},
				"old_name": map[string]any{"type": "string"},
				"new_name": map[string]any{"type": "string"},
			},
			"required": []string{"path", "old_name", "new_name"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleRenameSymbolInFile)

	r.Register(models.ToolDescriptor{
		Name:        "append_to_function",
		Description: "Appends one or more statements to the end of a function's body.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":          map[string]any{"type": "string"},
				"function_name": map[string]any{"type": "string"},
				"code":          map[string]any{"type": "string"},
			},
			"required": []string{"path", "function_name", "code"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleAppendToFunction)

	r.Register(models.ToolDescriptor{
		Name:        "replace_node_in_file",
		Description: "Replaces the first occurrence of old_snippet with new_snippet in a file's source text.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":        map[string]any{"type": "string"},
				"old_snippet": map[string]any{"type": "string"},
				"new_snippet": map[string]any{"type": "string"},
			},
			"required": []string{"path", "old_snippet"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleReplaceNodeInFile)

	r.Register(models.ToolDescriptor{
		Name:        "replace_method_in_class",
		Description: "Replaces an existing method on a receiver type with a newly supplied declaration.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":            map[string]any{"type": "string"},
				"receiver_type":   map[string]any{"type": "string"},
				"method_name":     map[string]any{"type": "string"},
				"new_method_code": map[string]any{"type": "string"},
			},
			"required": []string{"path", "receiver_type", "method_name", "new_method_code"},
		},
		PathParamKeys: []string{"path"},
		Mutates:       true,
	}, handleReplaceMethodInClass)

	r.Register(models.ToolDescriptor{
		Name:        "create_new_tool",
		Description: "Meta-tool: registers a new ToolDescriptor and a trivial shell-backed handler at runtime.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
			},
			"required": []string{"name", "description"},
		},
	}, makeCreateNewToolHandler(r))
}

func handleWriteFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return "error: path is required", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

func handleReadFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("error: file not found: %s", path), nil
		}
		return nil, err
	}
	return string(data), nil
}

func handleListFiles(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("error: directory not found: %s", path), nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name()+"/")
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func handleCreateDirectory(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	return fmt.Sprintf("created directory %s", path), nil
}

func handleDeleteDirectory(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	if err := os.RemoveAll(path); err != nil {
		return nil, err
	}
	return fmt.Sprintf("deleted directory %s", path), nil
}

func handleDeleteFile(ctx context.Context, args map[string]any) (any, error) {
	path, _ := args["path"].(string)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("error: file not found: %s", path), nil
		}
		return nil, err
	}
	return fmt.Sprintf("deleted file %s", path), nil
}

func handleCopyFile(ctx context.Context, args map[string]any) (any, error) {
	source, _ := args["source"].(string)
	dest, _ := args["destination"].(string)
	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("error: file not found: %s", source), nil
		}
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return nil, err
	}
	return fmt.Sprintf("copied %s to %s", source, dest), nil
}

func handleMoveFile(ctx context.Context, args map[string]any) (any, error) {
	source, _ := args["source"].(string)
	dest, _ := args["destination"].(string)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, err
	}
	if err := os.Rename(source, dest); err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("error: file not found: %s", source), nil
		}
		return nil, err
	}
	return fmt.Sprintf("moved %s to %s", source, dest), nil
}

func handleRunShellCommand(ctx context.Context, args map[string]any) (any, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return "error: command is required", nil
	}

	timeout := defaultShellTimeout
	if secs, ok := args["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := map[string]any{
		"stdout": stdout.String(),
		"stderr": stderr.String(),
	}
	if runCtx.Err() == context.DeadlineExceeded {
		result["status"] = "failure"
		result["summary"] = fmt.Sprintf("command timed out after %s", timeout)
		return result, nil
	}
	if runErr != nil {
		result["status"] = "failure"
		result["summary"] = fmt.Sprintf("command failed: %s", runErr.Error())
		return result, nil
	}
	result["status"] = "success"
	return result, nil
}

func handleAddDependencyToGoMod(ctx context.Context, args map[string]any) (any, error) {
	module, _ := args["module"].(string)
	version, _ := args["version"].(string)
	goModPath, _ := args["go_mod_path"].(string)
	if goModPath == "" {
		goModPath = "go.mod"
	}

	data, err := os.ReadFile(goModPath)
	if err != nil {
		return fmt.Sprintf("error: go.mod not found at %s", goModPath), nil
	}

	modFile, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return fmt.Sprintf("error: go.mod not parseable: %s", err.Error()), nil
	}

	if err := modFile.AddRequire(module, version); err != nil {
		return fmt.Sprintf("error: failed to add requirement: %s", err.Error()), nil
	}
	modFile.Cleanup()

	out, err := modFile.Format()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(goModPath, out, 0o644); err != nil {
		return nil, err
	}
	return fmt.Sprintf("added %s@%s to go.mod", module, version), nil
}

func handleRequestUserInput(ctx context.Context, args map[string]any) (any, error) {
	question, _ := args["question"].(string)
	bus, _ := args["notification_bus"].(NotificationBus)
	if bus != nil {
		bus.PublishInputRequest(ctx, question)
	}
	return map[string]any{"status": "awaiting_user_input", "question": question}, nil
}

func handleIndexProjectContext(ctx context.Context, args map[string]any) (any, error) {
	vc, _ := args["vector_context"].(VectorIndexer)
	pm, _ := args["project_manager"].(ProjectRootProvider)
	if vc == nil || pm == nil {
		return "error: missing required services for index_project_context", nil
	}
	if err := vc.IndexProject(ctx, pm.ProjectRoot()); err != nil {
		return nil, err
	}
	return "indexed project context", nil
}

func makeCreateNewToolHandler(r *Registry) Handler {
	return func(ctx context.Context, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		description, _ := args["description"].(string)
		if name == "" {
			return "error: name is required", nil
		}
		if _, exists := r.Descriptor(name); exists {
			return fmt.Sprintf("error: tool %q already registered", name), nil
		}

		r.Register(models.ToolDescriptor{
			Name:        name,
			Description: description,
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string"},
				},
			},
			Mutates: true,
		}, handleRunShellCommand)

		return fmt.Sprintf("registered new tool %q", name), nil
	}
}

// NotificationBus is the narrow slice of internal/bus.Bus the
// request_user_input tool needs, kept as an interface here so internal/tools
// never imports internal/bus directly.
type NotificationBus interface {
	PublishInputRequest(ctx context.Context, question string)
}

// VectorIndexer is the narrow slice of the vector-context service the
// index_project_context tool needs.
type VectorIndexer interface {
	IndexProject(ctx context.Context, root string) error
}

// ProjectRootProvider is the narrow slice of the project manager the
// index_project_context tool needs.
type ProjectRootProvider interface {
	ProjectRoot() string
}
