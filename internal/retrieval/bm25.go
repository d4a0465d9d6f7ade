package retrieval

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// bm25Hit is one keyword search result.
type bm25Hit struct {
	Name  string
	Score float64
}

// BM25Index provides BM25 keyword search over tool names and descriptions.
type BM25Index struct {
	index bleve.Index
	path  string
}

// NewBM25Index creates or opens the index at path. A corrupted index is
// deleted and recreated; it is rebuilt on the next ingest.
func NewBM25Index(path string) (*BM25Index, error) {
	index, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create BM25 index: %w", err)
		}
		log.Println("📚 BM25 tool index created")
	} else if err != nil {
		log.Printf("⚠️  BM25 index appears corrupted (error: %v), recreating...", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate BM25 index: %w", err)
		}
		log.Println("✅ BM25 index recreated (corrupted index was deleted)")
	}

	return &BM25Index{index: index, path: path}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	toolMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = keyword.Name
	nameField.Store = true
	nameField.IncludeInAll = false
	toolMapping.AddFieldMappingsAt("name", nameField)

	// "list_directory" is indexed as "list directory" so either word matches
	nameWordsField := bleve.NewTextFieldMapping()
	nameWordsField.Analyzer = standard.Name
	nameWordsField.Store = false
	toolMapping.AddFieldMappingsAt("name_words", nameWordsField)

	descriptionField := bleve.NewTextFieldMapping()
	descriptionField.Analyzer = standard.Name
	descriptionField.Store = false
	toolMapping.AddFieldMappingsAt("description", descriptionField)

	indexMapping.DefaultMapping = toolMapping
	return indexMapping
}

func nameWords(name string) string {
	return strings.NewReplacer("_", " ", "-", " ", ".", " ", "/", " ").Replace(name)
}

// Replace makes the index hold exactly tools.
func (b *BM25Index) Replace(tools []engine.ToolDefinition) error {
	keep := make(map[string]bool, len(tools))
	batch := b.index.NewBatch()

	for _, t := range tools {
		keep[t.Name] = true
		doc := map[string]interface{}{
			"name":        t.Name,
			"name_words":  nameWords(t.Name),
			"description": t.Description,
		}
		if err := batch.Index(t.Name, doc); err != nil {
			return fmt.Errorf("failed to add tool %s to batch: %w", t.Name, err)
		}
	}

	existing, err := b.allIDs()
	if err != nil {
		return err
	}
	for _, id := range existing {
		if !keep[id] {
			batch.Delete(id)
		}
	}

	return b.index.Batch(batch)
}

func (b *BM25Index) allIDs() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count BM25 documents: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list BM25 documents: %w", err)
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Search performs a BM25 search and returns the top k hits.
func (b *BM25Index) Search(query string, k int) ([]bm25Hit, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = k

	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("BM25 search failed: %w", err)
	}

	hits := make([]bm25Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, bm25Hit{Name: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

func (b *BM25Index) Close() error {
	return b.index.Close()
}
