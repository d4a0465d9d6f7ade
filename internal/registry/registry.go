// Package registry holds the authoritative tool catalog and keeps it in sync
// with its source.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ChamsBouzaiene/toolgate/internal/engine"
)

// Source publishes the authoritative list of tools.
type Source interface {
	Name() string
	ListTools(ctx context.Context) ([]engine.ToolDefinition, error)
}

// Listener is notified after every successful sync with the new catalog.
type Listener func(ctx context.Context, tools []engine.ToolDefinition) error

type catalog struct {
	ordered []engine.ToolDefinition
	byName  map[string]engine.ToolDefinition
}

// Registry is the live tool catalog. Readers always see one complete catalog
// snapshot; Sync swaps in a new snapshot only when the whole source listing
// was valid.
type Registry struct {
	source Source

	mu        sync.RWMutex
	current   *catalog
	lastSync  time.Time
	listeners []Listener

	syncMu sync.Mutex
}

// New returns an empty registry backed by source.
func New(source Source) *Registry {
	return &Registry{
		source:  source,
		current: &catalog{byName: map[string]engine.ToolDefinition{}},
	}
}

// OnSync registers a listener run after each successful sync.
func (r *Registry) OnSync(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Sync replaces the catalog with the source's current listing. On failure
// the previous catalog stays active and a *engine.RegistrySyncError is returned.
func (r *Registry) Sync(ctx context.Context) ([]engine.ToolDefinition, error) {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	if r.source == nil {
		return nil, &engine.RegistrySyncError{Err: errors.New("no tool source configured")}
	}

	tools, err := r.source.ListTools(ctx)
	if err != nil {
		return nil, &engine.RegistrySyncError{Source: r.source.Name(), Err: err}
	}
	next, err := buildCatalog(tools)
	if err != nil {
		return nil, &engine.RegistrySyncError{Source: r.source.Name(), Err: err}
	}

	r.mu.Lock()
	r.current = next
	r.lastSync = time.Now()
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	log.Printf("✅ Synced %d tools from %s", len(next.ordered), r.source.Name())

	snapshot := cloneDefs(next.ordered)
	for _, l := range listeners {
		if err := l(ctx, cloneDefs(next.ordered)); err != nil {
			log.Printf("⚠️  Sync listener failed: %v", err)
		}
	}
	return snapshot, nil
}

func buildCatalog(tools []engine.ToolDefinition) (*catalog, error) {
	c := &catalog{
		ordered: make([]engine.ToolDefinition, 0, len(tools)),
		byName:  make(map[string]engine.ToolDefinition, len(tools)),
	}
	for i, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool at position %d has no name", i)
		}
		if _, dup := c.byName[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		if len(t.InputSchema) > 0 && !json.Valid(t.InputSchema) {
			return nil, fmt.Errorf("tool %q has an invalid input schema", t.Name)
		}
		t = cloneDef(t)
		c.ordered = append(c.ordered, t)
		c.byName[t.Name] = t
	}
	return c, nil
}

// All returns the catalog in source order.
func (r *Registry) All() []engine.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneDefs(r.current.ordered)
}

// Get looks up a tool by name. Unknown names return engine.ErrToolNotFound.
func (r *Registry) Get(name string) (engine.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.current.byName[name]
	if !ok {
		return engine.ToolDefinition{}, fmt.Errorf("%w: %s", engine.ErrToolNotFound, name)
	}
	return cloneDef(t), nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.current.ordered)
}

// LastSync returns the time of the last successful sync, zero if none.
func (r *Registry) LastSync() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSync
}

func cloneDef(t engine.ToolDefinition) engine.ToolDefinition {
	t.InputSchema = append(json.RawMessage(nil), t.InputSchema...)
	t.Embedding = append([]float32(nil), t.Embedding...)
	return t
}

func cloneDefs(defs []engine.ToolDefinition) []engine.ToolDefinition {
	out := make([]engine.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = cloneDef(d)
	}
	return out
}
