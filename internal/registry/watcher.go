package registry

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CatalogWatcher re-syncs a registry whenever its catalog file changes.
type CatalogWatcher struct {
	reg          *Registry
	path         string
	watcher      *fsnotify.Watcher
	debounceTime time.Duration
	mu           sync.Mutex
	pending      bool
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewCatalogWatcher watches path for changes. A debounce of 0 uses 500ms.
func NewCatalogWatcher(reg *Registry, path string, debounce time.Duration) (*CatalogWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &CatalogWatcher{
		reg:          reg,
		path:         abs,
		watcher:      watcher,
		debounceTime: debounce,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start begins watching. The parent directory is watched so editors that
// replace the file on save are still observed.
func (cw *CatalogWatcher) Start() error {
	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cw.path, err)
	}

	cw.wg.Add(2)
	go cw.eventLoop()
	go cw.debounceLoop()
	return nil
}

// Stop stops the watcher and waits for its goroutines.
func (cw *CatalogWatcher) Stop() error {
	cw.cancel()
	cw.wg.Wait()
	return cw.watcher.Close()
}

func (cw *CatalogWatcher) eventLoop() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				cw.mu.Lock()
				cw.pending = true
				cw.mu.Unlock()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Watcher error: %v", err)
		}
	}
}

func (cw *CatalogWatcher) debounceLoop() {
	defer cw.wg.Done()

	ticker := time.NewTicker(cw.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-cw.ctx.Done():
			return
		case <-ticker.C:
			cw.flush()
		}
	}
}

func (cw *CatalogWatcher) flush() {
	cw.mu.Lock()
	if !cw.pending {
		cw.mu.Unlock()
		return
	}
	cw.pending = false
	cw.mu.Unlock()

	log.Printf("🔄 Tool catalog %s changed, re-syncing", filepath.Base(cw.path))
	if _, err := cw.reg.Sync(cw.ctx); err != nil {
		log.Printf("⚠️  %v (keeping previous catalog)", err)
	}
}
