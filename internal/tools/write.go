package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

type writeResult struct {
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Bytes   int    `json:"bytes,omitempty"`
	Message string `json:"message,omitempty"`
}

func (w *Workspace) writeFile(path, content string) (string, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	if abs == w.root {
		return "", fmt.Errorf("path is required")
	}
	if err := w.fs.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := w.fs.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return jsonResult(writeResult{Path: path, Success: true, Bytes: len(content)})
}

// deleteFile removes a single file. Deleting a missing file succeeds.
func (w *Workspace) deleteFile(path string) (string, error) {
	abs, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := w.fs.Stat(abs)
	if os.IsNotExist(err) {
		return jsonResult(writeResult{Path: path, Success: true, Message: "file does not exist"})
	}
	if err != nil {
		return "", fmt.Errorf("failed to check file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot delete directory %s", path)
	}
	if err := w.fs.Remove(abs); err != nil {
		return "", fmt.Errorf("failed to delete file: %w", err)
	}
	return jsonResult(writeResult{Path: path, Success: true, Message: "file deleted"})
}

func (w *Workspace) writeFileTool() tool {
	return tool{
		def: engine.ToolDefinition{
			Name:        "write_file",
			Description: "Create a file in the workspace or overwrite it with new content. Missing parent directories are created.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"path":{"type":"string","description":"File path relative to the workspace root"},
				"content":{"type":"string","description":"Full content to write"}
			},"required":["path","content"]}`),
		},
		fn: func(_ context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path", true)
			if err != nil {
				return "", err
			}
			content, err := stringArg(args, "content", true)
			if err != nil {
				return "", err
			}
			return w.writeFile(path, content)
		},
	}
}

func (w *Workspace) deleteFileTool() tool {
	return tool{
		def: engine.ToolDefinition{
			Name:        "delete_file",
			Description: "Delete a file from the workspace. Directories cannot be deleted.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{
				"path":{"type":"string","description":"File path relative to the workspace root"}
			},"required":["path"]}`),
		},
		fn: func(_ context.Context, args map[string]any) (string, error) {
			path, err := stringArg(args, "path", true)
			if err != nil {
				return "", err
			}
			if path == "" {
				return "", fmt.Errorf("path cannot be empty")
			}
			return w.deleteFile(path)
		},
	}
}
