// Package tools serves a built-in set of workspace tools (listing, reading,
// writing and searching files under one root directory) so toolgate can run
// without an external MCP server.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

type toolFunc func(ctx context.Context, args map[string]any) (string, error)

type tool struct {
	def engine.ToolDefinition
	fn  toolFunc
}

// Workspace is both the registry source and the executor for the built-in
// tools. Every path argument is resolved relative to the root and may not
// escape it.
type Workspace struct {
	root  string
	fs    FileSystem
	tools []tool
}

// NewWorkspace serves the built-in tools over root, which must be an existing directory.
func NewWorkspace(root string) (*Workspace, error) {
	return newWorkspace(root, NewOSFileSystem())
}

func newWorkspace(root string, fsys FileSystem) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if info, err := fsys.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a valid directory: %s", abs)
	}
	resolved, err := fsys.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}

	w := &Workspace{root: resolved, fs: fsys}
	w.tools = []tool{
		w.listDirectoryTool(),
		w.readFileTool(),
		w.writeFileTool(),
		w.deleteFileTool(),
		w.searchFilesTool(),
	}
	return w, nil
}

// Root is the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) Name() string { return "local:" + w.root }

// ListTools returns the built-in tool definitions.
func (w *Workspace) ListTools(ctx context.Context) ([]engine.ToolDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defs := make([]engine.ToolDefinition, len(w.tools))
	for i, t := range w.tools {
		defs[i] = t.def
		defs[i].InputSchema = append(json.RawMessage(nil), t.def.InputSchema...)
	}
	return defs, nil
}

// Execute runs the named tool. Failures are returned as *engine.ToolExecutionError.
func (w *Workspace) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	for _, t := range w.tools {
		if t.def.Name != name {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		out, err := t.fn(ctx, args)
		if err != nil {
			return "", &engine.ToolExecutionError{ToolName: name, Err: err}
		}
		return out, nil
	}
	return "", fmt.Errorf("%w: %s", engine.ErrToolNotFound, name)
}

// resolve maps a workspace-relative path to its real absolute path. Both the
// path as written and its symlink-resolved target must stay inside the root.
func (w *Workspace) resolve(path string) (string, error) {
	full := filepath.Join(w.root, path)
	if !w.contains(full) {
		return "", fmt.Errorf("path %s is outside the workspace", path)
	}
	resolved, err := w.realPath(full)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if !w.contains(resolved) {
		return "", fmt.Errorf("path %s resolves outside the workspace", path)
	}
	return resolved, nil
}

// realPath resolves symlinks in the longest existing prefix of p and appends
// the missing components, so files about to be created are checked through
// their parent directory.
func (w *Workspace) realPath(p string) (string, error) {
	var missing []string
	for {
		resolved, err := w.fs.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, missing...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := w.fs.Lstat(p); lerr == nil {
			// the entry exists, so it is a link to a missing target
			return "", fmt.Errorf("%s is a dangling symlink", w.relative(p))
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", err
		}
		missing = append([]string{filepath.Base(p)}, missing...)
		p = parent
	}
}

func (w *Workspace) contains(abs string) bool {
	rel, err := filepath.Rel(w.root, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Workspace) relative(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%s is required", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return s, nil
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

// intArg reads a JSON number, which decodes as float64.
func intArg(args map[string]any, key string, def int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

func stringsArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
