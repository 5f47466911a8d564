// Package ingest turns directories of source files into indexed collections.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/fs"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/retriever"
	"golang.org/x/sync/errgroup"
)

// Options configures a Pipeline.
type Options struct {
	// Extensions selects source files. Empty means config.DefaultExtensions.
	Extensions []string

	// IgnorePatterns are skipped in addition to the directory's ignore file.
	IgnorePatterns []string

	// BatchSize is the maximum number of files loaded and added at once.
	BatchSize int

	// Concurrency is the number of collections InitAll ingests at once.
	Concurrency int

	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64
}

// OptionsFromConfig builds Options from the ingest section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Extensions:     cfg.Ingest.Extensions,
		IgnorePatterns: cfg.Ingest.Ignore,
		BatchSize:      cfg.Ingest.BatchSize,
		Concurrency:    cfg.Ingest.Concurrency,
		MaxFileSize:    fs.DefaultWalkOptions().MaxFileSize,
	}
}

// Pipeline discovers pending files, loads them and adds them to their
// collection's retriever, marking each indexed file processed.
type Pipeline struct {
	registry *registry.Registry
	loader   fs.Loader
	opts     Options
	now      func() time.Time
}

// New creates a pipeline.
func New(reg *registry.Registry, loader fs.Loader, opts Options) *Pipeline {
	if loader == nil {
		loader = fs.NewLoader()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = config.DefaultExtensions()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = config.DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}
	return &Pipeline{
		registry: reg,
		loader:   loader,
		opts:     opts,
		now:      time.Now,
	}
}

// Registry returns the registry the pipeline populates.
func (p *Pipeline) Registry() *registry.Registry {
	return p.registry
}

// InitAll ingests every collection directory under root concurrently. With no
// subdirs, each non-hidden directory of root is a collection named after it.
// A failing collection never stops the others; failures are reported in its
// Result. The error is only set when root cannot be listed.
func (p *Pipeline) InitAll(ctx context.Context, root string, subdirs ...string) (map[string]Result, error) {
	start := time.Now()

	if len(subdirs) == 0 {
		var err error
		subdirs, err = collectionDirs(root)
		if err != nil {
			return nil, err
		}
	}

	log.Info("Initializing collections", "root", root, "collections", len(subdirs))

	var (
		mu      sync.Mutex
		results = make(map[string]Result, len(subdirs))
	)

	// A plain group: no derived context, so one failure cancels nothing.
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for _, name := range subdirs {
		g.Go(func() error {
			var res Result
			if err := ctx.Err(); err != nil {
				res = Result{Collection: name, Err: err}
				res.finish(time.Now())
			} else {
				res = p.IngestCollection(ctx, name, filepath.Join(root, name))
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	counts := make(map[Status]int)
	for _, res := range results {
		counts[res.Status]++
	}
	log.Info("Initialization complete",
		"collections", len(results),
		"succeeded", counts[StatusSucceeded],
		"partial", counts[StatusPartial],
		"failed", counts[StatusFailed],
		"skipped", counts[StatusSkipped],
		"duration", time.Since(start).Round(time.Millisecond))

	return results, nil
}

// collectionDirs lists the non-hidden subdirectories of root.
func collectionDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections in %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	return dirs, nil
}

// IngestCollection ingests the pending files of dir into collection name.
func (p *Pipeline) IngestCollection(ctx context.Context, name, dir string) Result {
	start := time.Now()
	res := Result{Collection: name}
	defer func() {
		log.Info("Collection processed", "collection", name, "status", res.Status,
			"indexed", res.FilesIndexed, "failed", res.FilesFailed,
			"duration", res.Duration.Round(time.Millisecond))
	}()

	log.Info("Processing collection", "collection", name, "dir", dir)

	files, stats, err := fs.Pending(p.walkOptions(dir))
	if err != nil {
		res.Err = fmt.Errorf("failed to discover files: %w", err)
		res.Errors = append(res.Errors, res.Err.Error())
		res.finish(start)
		return res
	}
	log.Debug("Discovered files", "collection", name, "pending", len(files),
		"processed", stats.FilesProcessed, "skipped", stats.FilesSkipped)

	p.ingestFiles(ctx, name, dir, files, &res)
	res.finish(start)
	return res
}

// IngestFiles ingests specific files of dir into collection name.
func (p *Pipeline) IngestFiles(ctx context.Context, name, dir string, files []fs.FileInfo) Result {
	start := time.Now()
	res := Result{Collection: name}
	p.ingestFiles(ctx, name, dir, files, &res)
	res.finish(start)
	return res
}

func (p *Pipeline) walkOptions(dir string) fs.WalkOptions {
	opts := fs.DefaultWalkOptions()
	opts.Root = dir
	opts.Extensions = p.opts.Extensions
	opts.IgnorePatterns = p.opts.IgnorePatterns
	opts.MaxFileSize = p.opts.MaxFileSize
	return opts
}

func (p *Pipeline) ingestFiles(ctx context.Context, name, dir string, files []fs.FileInfo, res *Result) {
	res.FilesFound = len(files)
	if len(files) == 0 {
		return
	}

	meta, err := LoadDescriptor(dir, p.now())
	if err != nil {
		res.Err = err
		res.Errors = append(res.Errors, err.Error())
		return
	}

	ret, err := p.registry.Ensure(ctx, registry.Named(name), meta)
	if err != nil {
		res.Err = err
		res.Errors = append(res.Errors, err.Error())
		return
	}

	for batchStart := 0; batchStart < len(files); batchStart += p.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return
		}

		batch := files[batchStart:min(batchStart+p.opts.BatchSize, len(files))]
		if err := p.ingestBatch(ctx, ret, meta, batch, res); err != nil {
			res.Err = err
			return
		}
		log.Debug("Ingested batch", "collection", name, "files", len(batch),
			"indexed", res.FilesIndexed, "failed", res.FilesFailed)
	}
}

// ingestBatch loads and adds one batch. It only returns an error when ctx is
// done; per-file failures are recorded in res.
func (p *Pipeline) ingestBatch(ctx context.Context, ret *retriever.Retriever, meta map[string]any, batch []fs.FileInfo, res *Result) error {
	docs := make([]retriever.Document, 0, len(batch))
	loaded := make([]fs.FileInfo, 0, len(batch))

	for _, fi := range batch {
		content, err := p.loader.Load(ctx, fi.Path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var loadErr *fs.LoadError
			if errors.As(err, &loadErr) {
				log.Warn("Skipping unreadable file", "path", fi.RelPath, "error", loadErr.Err)
			} else {
				log.Warn("Failed to load file", "path", fi.RelPath, "error", err)
			}
			res.fail(err.Error())
			continue
		}
		docs = append(docs, newDocument(fi, content, meta))
		loaded = append(loaded, fi)
	}
	if len(docs) == 0 {
		return nil
	}

	// Per-document failures are reported in outcomes.
	outcomes, _ := ret.AddDocuments(ctx, docs)
	if err := ctx.Err(); err != nil {
		// Files already added stay pending; a retry overwrites them.
		return err
	}

	for i, outcome := range outcomes {
		fi := loaded[i]
		if !outcome.OK() {
			res.fail(outcome.Err.Error())
			continue
		}
		if _, err := fs.MarkProcessed(fi.Path); err != nil {
			log.Warn("Indexed file could not be marked processed", "path", fi.RelPath, "error", err)
			res.fail(err.Error())
			continue
		}
		res.FilesIndexed++
		res.Parents += outcome.Parents
		res.Children += outcome.Children
	}
	return nil
}

func newDocument(fi fs.FileInfo, content *fs.Content, collectionMeta map[string]any) retriever.Document {
	meta := make(map[string]any, len(collectionMeta)+3)
	maps.Copy(meta, collectionMeta)
	meta[retriever.MetaSource] = fi.RelPath
	if fi.Hash != "" {
		meta[retriever.MetaHash] = fi.Hash
	}
	if content.Title != "" {
		meta[retriever.MetaTitle] = content.Title
	}
	return retriever.Document{Content: content.Text, Metadata: meta}
}
