// Package watcher ingests new source files as they appear under the source root.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/nickcecere/strata/internal/fs"
	"github.com/nickcecere/strata/internal/ingest"
)

// Watcher watches the source root and its collection directories. A
// collection is ingested once no event has touched it for the debounce time,
// so files still being written are never loaded part way.
type Watcher struct {
	root       string
	pipeline   *ingest.Pipeline
	extensions []string

	// dirty maps collections with unprocessed events to their last event
	dirty        map[string]time.Time
	dirtyMu      sync.Mutex
	debounceTime time.Duration
	now          func() time.Time

	onIngest func(ingest.Result)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets how long a collection must be quiet before it is
// ingested.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithIngestCallback sets a callback run after each collection is ingested.
func WithIngestCallback(fn func(ingest.Result)) Option {
	return func(w *Watcher) {
		w.onIngest = fn
	}
}

// New creates a watcher for root. Only files with one of extensions trigger
// ingestion.
func New(root string, pipeline *ingest.Pipeline, extensions []string, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:         absRoot,
		pipeline:     pipeline,
		extensions:   extensions,
		dirty:        make(map[string]time.Time),
		debounceTime: 500 * time.Millisecond,
		now:          time.Now,
		onIngest:     func(ingest.Result) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches until ctx is cancelled. Files already pending are ingested
// on the first flush.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.root); err != nil {
		return err
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.watchCollection(watcher, e.Name())
		}
	}

	log.Info("Watching for new source files", "root", w.root)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) watchCollection(watcher *fsnotify.Watcher, name string) {
	if err := watcher.Add(filepath.Join(w.root, name)); err != nil {
		log.Debug("Failed to watch collection", "collection", name, "error", err)
		return
	}
	w.markDirty(name)
}

func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	collection, isDir, ok := w.classify(event.Name)
	if !ok {
		return
	}
	if isDir {
		log.Debug("New collection directory", "collection", collection)
		w.watchCollection(watcher, collection)
		return
	}
	w.markDirty(collection)
}

// classify maps path to its collection. isDir is set for a new collection
// directory; ok is false for paths that never trigger ingestion.
func (w *Watcher) classify(path string) (collection string, isDir, ok bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return "", false, false
		}
	}

	switch len(parts) {
	case 1:
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return "", false, false
		}
		return parts[0], true, true
	case 2:
		name := parts[1]
		if fs.IsProcessed(name) || !w.hasExtension(name) {
			return "", false, false
		}
		return parts[0], false, true
	default:
		return "", false, false
	}
}

func (w *Watcher) hasExtension(name string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(name)))
}

func (w *Watcher) markDirty(collection string) {
	w.dirtyMu.Lock()
	w.dirty[collection] = w.now()
	w.dirtyMu.Unlock()
}

// due removes and returns the collections quiet since at least debounceTime
// before now.
func (w *Watcher) due(now time.Time) []string {
	w.dirtyMu.Lock()
	defer w.dirtyMu.Unlock()

	var collections []string
	for c, last := range w.dirty {
		if now.Sub(last) >= w.debounceTime {
			collections = append(collections, c)
			delete(w.dirty, c)
		}
	}
	slices.Sort(collections)
	return collections
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(max(w.debounceTime/4, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// flush ingests every collection that has gone quiet.
func (w *Watcher) flush(ctx context.Context) {
	for _, c := range w.due(w.now()) {
		if ctx.Err() != nil {
			return
		}
		res := w.pipeline.IngestCollection(ctx, c, filepath.Join(w.root, c))
		if res.Status != ingest.StatusSkipped {
			log.Info("Ingested", "collection", c, "status", res.Status, "files", res.FilesIndexed)
		}
		w.onIngest(res)
	}
}
