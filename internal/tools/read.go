package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// outlineThreshold is the line count above which read_file returns an
// outline instead of the whole file, unless a line range is requested.
const outlineThreshold = 400

type readResult struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	LineCount   int    `json:"line_count"`
	ContentType string `json:"content_type"` // full, range or outline
	StartLine   int    `json:"start_line,omitempty"`
	EndLine     int    `json:"end_line,omitempty"`
}

func (w *Workspace) readFile(path string, start, end int) (string, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := w.fs.ReadFile(abs)
	if err != nil {
		return "", err
	}
	content := string(data)
	lines := strings.Split(content, "\n")
	res := readResult{Path: path, LineCount: len(lines)}

	switch {
	case start > 0 || end > 0:
		if start <= 0 {
			start = 1
		}
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return "", fmt.Errorf("invalid line range %d-%d for a %d line file", start, end, len(lines))
		}
		res.Content = strings.Join(lines[start-1:end], "\n")
		res.ContentType = "range"
		res.StartLine, res.EndLine = start, end
	case len(lines) > outlineThreshold:
		res.Content = outline(path, lines)
		res.ContentType = "outline"
	default:
		res.Content = content
		res.ContentType = "full"
	}
	return jsonResult(res)
}

// outline lists declaration lines with their numbers so the model can ask
// for a line range next.
func outline(path string, lines []string) string {
	var prefixes []string
	switch filepath.Ext(path) {
	case ".go":
		prefixes = []string{"package ", "type ", "func ", "const ", "var "}
	case ".py":
		prefixes = []string{"class ", "def ", "async def ", "@"}
	case ".ts", ".tsx", ".js", ".jsx":
		prefixes = []string{"export ", "class ", "function ", "interface ", "type "}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "File has %d lines, showing an outline. Call read_file with start_line and end_line to read a section.\n\n", len(lines))
	if prefixes == nil {
		for i := 0; i < 30 && i < len(lines); i++ {
			fmt.Fprintf(&b, "%5d: %s\n", i+1, lines[i])
		}
		fmt.Fprintf(&b, "... %d more lines\n", len(lines)-30)
		return b.String()
	}
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != line && !strings.HasPrefix(trimmed, "def ") {
			// only top-level declarations, plus python methods
			continue
		}
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				fmt.Fprintf(&b, "%5d: %s\n", i+1, trimmed)
				break
			}
		}
	}
	return b.String()
}

func (w *Workspace) readFileTool() tool {
	return tool{
		def: engine.ToolDefinition{
			Name:        "read_file",
			Description: "Read the contents of a file in the workspace. Files over 400 lines return an outline unless a line range is given.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"path":{"type":"string","description":"File path relative to the workspace root"},
				"start_line":{"type":"integer","description":"Optional: first line to return, 1-based"},
				"end_line":{"type":"integer","description":"Optional: last line to return, inclusive"}
			},"required":["path"]}`),
		},
		fn: func(_ context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path", true)
			if err != nil {
				return "", err
			}
			return w.readFile(path, intArg(args, "start_line", 0), intArg(args, "end_line", 0))
		},
	}
}
