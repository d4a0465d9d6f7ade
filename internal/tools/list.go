package tools

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

const defaultListLimit = 1000

var defaultIgnorePatterns = []string{".git", "node_modules"}

type listResult struct {
	Path      string   `json:"path"`
	Entries   []string `json:"entries"`
	Recursive bool     `json:"recursive"`
	Truncated bool     `json:"truncated"`
}

// ignoreMatcher combines the caller's patterns with the workspace .gitignore.
func (w *Workspace) ignoreMatcher(patterns []string) *gitignore.GitIgnore {
	if len(patterns) == 0 {
		patterns = defaultIgnorePatterns
	}
	lines := append([]string(nil), patterns...)
	if data, err := w.fs.ReadFile(filepath.Join(w.root, ".gitignore")); err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	return gitignore.CompileIgnoreLines(lines...)
}

func (w *Workspace) listDirectory(ctx context.Context, path string, recursive bool, maxDepth, limit int, patterns []string) (string, error) {
	dir, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	matcher := w.ignoreMatcher(patterns)
	res := listResult{Path: path, Entries: []string{}, Recursive: recursive}

	add := func(abs string, isDir bool) bool {
		rel := w.relative(abs)
		if isDir {
			rel += "/"
		}
		res.Entries = append(res.Entries, rel)
		if len(res.Entries) >= limit {
			res.Truncated = true
			return false
		}
		return true
	}

	if !recursive {
		entries, err := w.fs.ReadDir(dir)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			abs := filepath.Join(dir, e.Name())
			if matcher.MatchesPath(w.relative(abs)) {
				continue
			}
			if !add(abs, e.IsDir()) {
				break
			}
		}
		return jsonResult(res)
	}

	err = w.fs.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == dir {
			return nil
		}
		if matcher.MatchesPath(w.relative(p)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if maxDepth >= 0 {
			rel, _ := filepath.Rel(dir, p)
			if strings.Count(rel, string(filepath.Separator)) > maxDepth {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if !add(p, d.IsDir()) {
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(res.Entries)
	return jsonResult(res)
}

func (w *Workspace) listDirectoryTool() tool {
	return tool{
		def: engine.ToolDefinition{
			Name:        "list_directory",
			Description: "List the files and directories in a workspace directory. Directories end with a slash. Supports recursive listing and gitignore-style ignore patterns.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"path":{"type":"string","description":"Directory relative to the workspace root, empty for the root"},
				"recursive":{"type":"boolean","description":"List subdirectories too. Default: false"},
				"max_depth":{"type":"integer","description":"Maximum depth for recursive listing. Default: unlimited"},
				"limit":{"type":"integer","description":"Maximum number of entries. Default: 1000"},
				"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"Gitignore-style patterns to skip. Default: .git, node_modules"}
			}}`),
		},
		fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path", false)
			if err != nil {
				return "", err
			}
			return w.listDirectory(ctx, path,
				boolArg(args, "recursive"),
				intArg(args, "max_depth", -1),
				intArg(args, "limit", defaultListLimit),
				stringsArg(args, "ignore_patterns"))
		},
	}
}
