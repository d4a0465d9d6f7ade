package retrieval

import (
	"path/filepath"
	"testing"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

func TestNameWords(t *testing.T) {
	tests := map[string]string{
		"list_directory": "list directory",
		"git-status":     "git status",
		"fs.read/file":   "fs read file",
		"plain":          "plain",
	}
	for in, want := range tests {
		if got := nameWords(in); got != want {
			t.Errorf("nameWords(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBM25IndexReplace(t *testing.T) {
	b, err := NewBM25Index(filepath.Join(t.TempDir(), "tools.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Replace(fsTools()); err != nil {
		t.Fatal(err)
	}
	hits, err := b.Search("weather", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Name != "get_weather" {
		t.Fatalf("hits = %v, want get_weather", hits)
	}

	if err := b.Replace([]engine.ToolDefinition{{Name: "read_file", Description: "Read a file"}}); err != nil {
		t.Fatal(err)
	}
	hits, err = b.Search("weather", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("removed tool still found: %v", hits)
	}
	count, err := b.index.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("DocCount = %d, want 1", count)
	}
}

func TestBM25IndexEmptyQuery(t *testing.T) {
	b, err := NewBM25Index(filepath.Join(t.TempDir(), "tools.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.Replace(fsTools()); err != nil {
		t.Fatal(err)
	}
	hits, err := b.Search("   ", 5)
	if err != nil || hits != nil {
		t.Errorf("Search(blank) = %v, %v", hits, err)
	}
}
