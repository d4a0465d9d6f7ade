package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

const (
	maxSearchResults  = 100
	maxSearchFileSize = 1 << 20
)

type searchMatch struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

type searchResult struct {
	Pattern   string        `json:"pattern"`
	Results   []searchMatch `json:"results"`
	Count     int           `json:"count"`
	Truncated bool          `json:"truncated"`
}

func (w *Workspace) searchFiles(ctx context.Context, pattern, path, globs string, caseInsensitive bool) (string, error) {
	expr := pattern
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}
	dir, err := w.resolve(path)
	if err != nil {
		return "", err
	}

	var globList []string
	for _, g := range strings.Split(globs, ",") {
		if g = strings.TrimSpace(g); g != "" {
			globList = append(globList, g)
		}
	}
	matcher := w.ignoreMatcher(nil)
	res := searchResult{Pattern: pattern, Results: []searchMatch{}}

	err = w.fs.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel := w.relative(p)
		if p != dir && matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		// links are not followed: their targets may lie outside the root
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 || !matchesGlobs(d.Name(), globList) {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Size() > maxSearchFileSize {
			return nil
		}

		data, err := w.fs.ReadFile(p)
		if err != nil || bytes.IndexByte(data, 0) >= 0 {
			// unreadable or binary
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if !re.MatchString(line) {
				continue
			}
			if len(res.Results) == maxSearchResults {
				res.Truncated = true
				return filepath.SkipAll
			}
			res.Results = append(res.Results, searchMatch{Path: rel, Line: i + 1, Content: strings.TrimSpace(line)})
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	res.Count = len(res.Results)
	return jsonResult(res)
}

func matchesGlobs(name string, globs []string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if ok, _ := filepath.Match(g, name); ok {
			return true
		}
	}
	return false
}

func (w *Workspace) searchFilesTool() tool {
	return tool{
		def: engine.ToolDefinition{
			Name:        "search_files",
			Description: "Search file contents in the workspace with a regular expression. Returns matching lines with paths and line numbers, skipping ignored and binary files.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"pattern":{"type":"string","description":"Regular expression (RE2 syntax)"},
				"path":{"type":"string","description":"Optional: directory to search, relative to the workspace root"},
				"globs":{"type":"string","description":"Optional: comma-separated file name patterns, e.g. *.go,*.md"},
				"case_insensitive":{"type":"boolean","description":"Optional: ignore case"}
			},"required":["pattern"]}`),
		},
		fn: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, err := stringArg(args, "pattern", true)
			if err != nil {
				return "", err
			}
			path, err := stringArg(args, "path", false)
			if err != nil {
				return "", err
			}
			globs, err := stringArg(args, "globs", false)
			if err != nil {
				return "", err
			}
			return w.searchFiles(ctx, pattern, path, globs, boolArg(args, "case_insensitive"))
		},
	}
}
