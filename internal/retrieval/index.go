// Package retrieval ranks tools against a conversation with hybrid BM25 and
// embedding search.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// rrfK is the reciprocal rank fusion offset.
const rrfK = 60.0

// candidatePool bounds how many hits each ranker contributes before fusion.
const candidatePool = 100

// IndexConfig configures an Index.
type IndexConfig struct {
	Dir      string   // holds tools.db and tools.db.bleve
	Embedder Embedder // nil ranks with BM25 only
}

// Index is the tool retriever. It keeps an in-memory snapshot of the last
// ingested catalog, persisted in sqlite, plus a BM25 index over it.
type Index struct {
	db       *DB
	bm25     *BM25Index
	embedder Embedder

	mu      sync.RWMutex
	tools   []engine.ToolDefinition // source order
	vectors map[string][]float32
	closed  bool
	stale   error // last failed Ingest, cleared by the next successful one
}

// ErrIndexEmpty is returned by Retrieve while no tools have been ingested.
var ErrIndexEmpty = errors.New("tool index is empty")

// NewIndex opens the index in cfg.Dir and loads the previously ingested catalog.
func NewIndex(ctx context.Context, cfg IndexConfig) (*Index, error) {
	if cfg.Dir == "" {
		return nil, errors.New("index directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, "tools.db")
	db, err := NewDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	bm25, err := NewBM25Index(dbPath + ".bleve")
	if err != nil {
		db.Close()
		return nil, err
	}

	idx := &Index{db: db, bm25: bm25, embedder: cfg.Embedder}
	if err := idx.reload(ctx); err != nil {
		idx.Close()
		return nil, err
	}
	if n := len(idx.tools); n > 0 {
		log.Printf("📚 Loaded %d tools from index", n)
	}
	return idx, nil
}

func contentHash(t engine.ToolDefinition) string {
	sum := sha256.Sum256([]byte(t.Name + "\x00" + t.Description + "\x00" + string(t.InputSchema)))
	return hex.EncodeToString(sum[:])
}

func embeddingText(t engine.ToolDefinition) string {
	return nameWords(t.Name) + "\n" + t.Description
}

// Ingest replaces the indexed catalog with tools. It is registered as a
// registry sync listener. Only tools whose content changed are re-embedded.
// After a failed Ingest, Retrieve reports an error until the next one
// succeeds, so callers never rank against an outdated catalog.
func (idx *Index) Ingest(ctx context.Context, tools []engine.ToolDefinition) error {
	err := idx.ingest(ctx, tools)
	idx.mu.Lock()
	idx.stale = err
	idx.mu.Unlock()
	return err
}

func (idx *Index) ingest(ctx context.Context, tools []engine.ToolDefinition) error {
	idx.mu.RLock()
	closed := idx.closed
	idx.mu.RUnlock()
	if closed {
		return errors.New("index is closed")
	}

	records := make([]toolRecord, len(tools))
	for i, t := range tools {
		schema := string(t.InputSchema)
		if schema == "" {
			schema = "{}"
		}
		records[i] = toolRecord{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
			ContentHash: contentHash(t),
			Position:    i,
		}
	}
	if err := idx.db.ReplaceTools(ctx, records); err != nil {
		return fmt.Errorf("failed to store tools: %w", err)
	}

	if idx.embedder != nil {
		if err := idx.embedChanged(ctx, tools, records); err != nil {
			// keyword search still works without fresh vectors
			log.Printf("⚠️  Failed to embed tools: %v", err)
		}
	}

	if err := idx.bm25.Replace(tools); err != nil {
		return fmt.Errorf("failed to update BM25 index: %w", err)
	}
	if err := idx.reload(ctx); err != nil {
		return err
	}
	log.Printf("📚 Indexed %d tools", len(tools))
	return nil
}

func (idx *Index) embedChanged(ctx context.Context, tools []engine.ToolDefinition, records []toolRecord) error {
	model := idx.embedder.Model()
	stored, err := idx.db.LoadEmbeddings(ctx, model)
	if err != nil {
		return err
	}

	var (
		texts []string
		which []int
	)
	for i, r := range records {
		if e, ok := stored[r.Name]; ok && e.ContentHash == r.ContentHash {
			continue
		}
		texts = append(texts, embeddingText(tools[i]))
		which = append(which, i)
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedder returned %d vectors for %d tools", len(vectors), len(texts))
	}
	for j, vec := range vectors {
		r := records[which[j]]
		if err := idx.db.UpsertEmbedding(ctx, r.Name, r.ContentHash, model, vec); err != nil {
			return err
		}
	}
	return nil
}

// reload rebuilds the in-memory snapshot from sqlite. Rows whose schema is
// not valid JSON are skipped.
func (idx *Index) reload(ctx context.Context) error {
	records, err := idx.db.LoadTools(ctx)
	if err != nil {
		return err
	}

	tools := make([]engine.ToolDefinition, 0, len(records))
	for _, r := range records {
		if !json.Valid([]byte(r.InputSchema)) {
			log.Printf("⚠️  Skipping tool %s: malformed input schema", r.Name)
			continue
		}
		tools = append(tools, engine.ToolDefinition{
			Name:        r.Name,
			Description: r.Description,
			InputSchema: json.RawMessage(r.InputSchema),
		})
	}

	vectors := map[string][]float32{}
	if idx.embedder != nil {
		stored, err := idx.db.LoadEmbeddings(ctx, idx.embedder.Model())
		if err != nil {
			return err
		}
		hashes := make(map[string]string, len(records))
		for _, r := range records {
			hashes[r.Name] = r.ContentHash
		}
		for _, t := range tools {
			if e, ok := stored[t.Name]; ok && e.ContentHash == hashes[t.Name] {
				vectors[t.Name] = e.Vector
			}
		}
	}
	for i := range tools {
		tools[i].Embedding = vectors[tools[i].Name]
	}

	idx.mu.Lock()
	idx.tools = tools
	idx.vectors = vectors
	idx.mu.Unlock()
	return nil
}

// Len returns the number of retrievable tools.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.tools)
}

// Retrieve returns min(topK, N) tools ranked by fused BM25 and embedding
// rank. Scores are normalized to [0,1]; ties are broken by name. Tools no
// ranker matched fill the remaining slots with score 0 in name order.
func (idx *Index) Retrieve(ctx context.Context, query string, topK int) (engine.RetrievalResult, error) {
	if topK <= 0 {
		return engine.RetrievalResult{}, &engine.RetrievalError{Query: query, Err: fmt.Errorf("top-k must be positive, got %d", topK)}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return engine.RetrievalResult{}, &engine.RetrievalError{Query: query, Err: errors.New("index is closed")}
	}
	if idx.stale != nil {
		return engine.RetrievalResult{}, &engine.RetrievalError{Query: query, Err: fmt.Errorf("tool index is out of date: %w", idx.stale)}
	}
	if len(idx.tools) == 0 {
		return engine.RetrievalResult{}, &engine.RetrievalError{Query: query, Err: ErrIndexEmpty}
	}

	known := make(map[string]engine.ToolDefinition, len(idx.tools))
	for _, t := range idx.tools {
		known[t.Name] = t
	}

	hits, err := idx.bm25.Search(query, candidatePool)
	if err != nil {
		return engine.RetrievalResult{}, &engine.RetrievalError{Query: query, Err: err}
	}

	rankers := 0
	scores := make(map[string]float64)
	if len(known) > 0 {
		rankers++
		rank := 0
		for _, h := range hits {
			if _, ok := known[h.Name]; !ok {
				continue
			}
			rank++
			scores[h.Name] += 1.0 / (rrfK + float64(rank))
		}

		if vecRanked := idx.rankByVector(ctx, query); vecRanked != nil {
			rankers++
			for i, name := range vecRanked {
				scores[name] += 1.0 / (rrfK + float64(i+1))
			}
		}
	}

	ranked := make([]engine.ScoredTool, 0, len(idx.tools))
	maxScore := float64(rankers) / (rrfK + 1)
	for _, t := range idx.tools {
		s := 0.0
		if maxScore > 0 {
			s = scores[t.Name] / maxScore
		}
		ranked = append(ranked, engine.ScoredTool{Tool: t, Score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Tool.Name < ranked[j].Tool.Name
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	for i := range ranked {
		ranked[i].Tool.Embedding = nil
		ranked[i].Tool.InputSchema = append(json.RawMessage(nil), ranked[i].Tool.InputSchema...)
	}
	return engine.RetrievalResult{Query: query, Tools: ranked}, nil
}

// rankByVector returns tool names ordered by cosine similarity to the query,
// or nil when semantic ranking is unavailable. Callers hold idx.mu.
func (idx *Index) rankByVector(ctx context.Context, query string) []string {
	if idx.embedder == nil || len(idx.vectors) == 0 {
		return nil
	}
	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("⚠️  Embedding search failed: %v", err)
		return nil
	}

	type scored struct {
		name  string
		score float64
	}
	var out []scored
	for name, vec := range idx.vectors {
		if sim := cosineSimilarity(queryVec, vec); sim > 0 {
			out = append(out, scored{name, sim})
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].name < out[j].name
	})
	if len(out) > candidatePool {
		out = out[:candidatePool]
	}
	names := make([]string, len(out))
	for i, s := range out {
		names[i] = s.name
	}
	return names
}

// Close releases the index. Retrieve fails with a RetrievalError afterwards.
func (idx *Index) Close() error {
	idx.mu.Lock()
	if idx.closed {
		idx.mu.Unlock()
		return nil
	}
	idx.closed = true
	idx.mu.Unlock()

	return errors.Join(idx.bm25.Close(), idx.db.Close())
}
