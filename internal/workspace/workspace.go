// Package workspace implements the project-workspace collaborator named in
// spec.md §1 ("Filesystem CRUD primitives and workspace management beyond
// what the core needs") and §6's workspace endpoints: it roots every user's
// projects under one configured directory, builds the file tree and "Data
// Contract" (schema/model file contents) the Conductor's Coder prompts need,
// and backs the Core API surface's project lifecycle operations (create,
// load, list files, read/write one file).
//
// Grounded on internal/tools/files.Resolver for the escape-safe path
// join (reused verbatim, not reimplemented) and on the bufio-based
// directory walk idiom in the deleted workspace/loader.go persona-file
// loader, now pointed at a project's source tree instead of
// AGENTS.md/SOUL.md-style persona files.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/CarpseDeam/aura-backend/internal/tools/files"
)

// dataContractNames lists the file basenames the Conductor's code-generation
// prompt treats as the project's "Data Contract" — the shared schema/model
// definitions every generated file should stay consistent with (spec.md
// §4.6 step 4.b).
var dataContractNames = []string{
	"models.py", "schemas.py", "models.go", "schema.go", "types.go",
}

// hiddenDirs are never descended into when building a file tree or
// searching for Data Contract files.
var hiddenDirs = map[string]bool{
	".git": true, ".aura": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true,
}

// Manager roots every (user, project) workspace under Root and implements
// internal/conductor.ProjectContext.
type Manager struct {
	// Root returns the directory a user's projects live under, e.g.
	// "/data/workspaces/{userID}".
	Root func(userID string) string
}

// NewManager constructs a Manager rooted at root/{userID}, matching
// spec.md §6: "Workspace files live under a per-user root; the core treats
// the root as an opaque directory."
func NewManager(root string) *Manager {
	return &Manager{
		Root: func(userID string) string {
			return filepath.Join(root, userID)
		},
	}
}

// ProjectRoot returns the absolute path of one user's project directory.
func (m *Manager) ProjectRoot(userID, project string) string {
	return filepath.Join(m.Root(userID), project)
}

func (m *Manager) resolver(userID, project string) files.Resolver {
	return files.Resolver{Root: m.ProjectRoot(userID, project)}
}

// CreateProject makes a new, empty project directory. Returns an error if
// the project already exists, matching the Core API surface's
// `POST /projects/{name}` → 201 semantics (idempotent creation is a
// collaborator concern, not this package's).
func (m *Manager) CreateProject(ctx context.Context, userID, project string) error {
	root := m.ProjectRoot(userID, project)
	if _, err := os.Stat(root); err == nil {
		return fmt.Errorf("workspace: project %q already exists", project)
	}
	return os.MkdirAll(root, 0o755)
}

// DeleteProject removes a project directory and everything under it,
// backing `DELETE /projects/{name}` → 204.
func (m *Manager) DeleteProject(ctx context.Context, userID, project string) error {
	return os.RemoveAll(m.ProjectRoot(userID, project))
}

// ListProjects returns every project name under userID's root.
func (m *Manager) ListProjects(ctx context.Context, userID string) ([]string, error) {
	entries, err := os.ReadDir(m.Root(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// FileTree walks a project's directory and returns every regular file's
// path relative to the project root, sorted, skipping VCS/dependency
// directories. Backs `GET /projects/workspace/{name}/files` and the
// Conductor's tool-selector prompt's file-structure section.
func (m *Manager) FileTree(ctx context.Context, userID, project string) ([]string, error) {
	root := m.ProjectRoot(userID, project)
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != root && hiddenDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// DataContract concatenates the contents of every schema/model file found
// anywhere in the project tree, each preceded by a path header, for the
// Conductor's write_file content-synthesis prompt (spec.md §4.6 step 4.b).
// Returns an empty string, not an error, when no such file exists yet —
// early in a mission the data layer may not have been written.
func (m *Manager) DataContract(ctx context.Context, userID, project string) (string, error) {
	tree, err := m.FileTree(ctx, userID, project)
	if err != nil {
		return "", err
	}
	root := m.ProjectRoot(userID, project)

	var b strings.Builder
	for _, rel := range tree {
		if !isDataContractFile(rel) {
			continue
		}
		content, readErr := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if readErr != nil {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", rel, string(content))
	}
	return strings.TrimSpace(b.String()), nil
}

func isDataContractFile(relPath string) bool {
	base := filepath.Base(relPath)
	for _, name := range dataContractNames {
		if base == name {
			return true
		}
	}
	return false
}

// ReadFile returns one file's contents, resolved and sandboxed against the
// project root. Backs `GET /projects/workspace/{name}/file?path=...`.
func (m *Manager) ReadFile(ctx context.Context, userID, project, path string) (string, error) {
	resolved, err := m.resolver(userID, project).Resolve(path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// WriteFile writes one file's contents, creating parent directories as
// needed. Backs `POST /projects/workspace/{name}/file` → 204.
func (m *Manager) WriteFile(ctx context.Context, userID, project, path, content string) error {
	resolved, err := m.resolver(userID, project).Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return err
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}
