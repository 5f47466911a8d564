package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/strata/internal/blobstore"
	"github.com/nickcecere/strata/internal/config"
	"github.com/nickcecere/strata/internal/embeddings"
	"github.com/nickcecere/strata/internal/fs"
	"github.com/nickcecere/strata/internal/ingest"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/retriever"
	"github.com/nickcecere/strata/internal/splitter"
	"github.com/nickcecere/strata/internal/store"
)

// app bundles the services every command works with.
type app struct {
	cfg      *config.Config
	index    *store.SQLiteStore
	blobs    blobstore.Store
	embedder embeddings.Service
	registry *registry.Registry
	pipeline *ingest.Pipeline
}

// openApp opens the index and docstore and wires the registry and pipeline.
func openApp(cfg *config.Config) (*app, error) {
	opts, err := retrieverOptions(cfg)
	if err != nil {
		return nil, err
	}

	index, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	blobs, err := blobstore.Open(cfg.Docstore.Type, docstorePath(cfg))
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to open docstore: %w", err)
	}

	emb, err := embeddings.NewService(cfg)
	if err != nil {
		blobs.Close()
		index.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	reg, err := registry.New(registry.Config{
		Index:             index,
		Blobs:             blobs,
		Embedder:          emb,
		Options:           opts,
		DefaultCollection: cfg.Retrieval.DefaultCollection,
	})
	if err != nil {
		blobs.Close()
		index.Close()
		return nil, err
	}

	log.Debug("Opened strata",
		"index", cfg.Database.Path,
		"docstore", cfg.Docstore.Type,
		"provider", emb.Provider(),
		"model", emb.ModelName())

	return &app{
		cfg:      cfg,
		index:    index,
		blobs:    blobs,
		embedder: emb,
		registry: reg,
		pipeline: ingest.New(reg, fs.NewLoader(), ingest.OptionsFromConfig(cfg)),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.blobs.Close(), a.index.Close())
}

func retrieverOptions(cfg *config.Config) (retriever.Options, error) {
	parent, err := splitter.New(splitter.Options{
		ChunkSize:    cfg.Splitter.Parent.ChunkSize,
		ChunkOverlap: cfg.Splitter.Parent.ChunkOverlap,
	})
	if err != nil {
		return retriever.Options{}, fmt.Errorf("invalid parent splitter: %w", err)
	}
	child, err := splitter.New(splitter.Options{
		ChunkSize:    cfg.Splitter.Child.ChunkSize,
		ChunkOverlap: cfg.Splitter.Child.ChunkOverlap,
	})
	if err != nil {
		return retriever.Options{}, fmt.Errorf("invalid child splitter: %w", err)
	}
	return retriever.Options{
		Parent: parent,
		Child:  child,
		TopK:   cfg.Retrieval.TopK,
		ChildK: cfg.Retrieval.ChildK,
	}, nil
}

// docstorePath returns where the docstore lives. A sqlite docstore given a
// directory gets a database file inside it.
func docstorePath(cfg *config.Config) string {
	path := cfg.Docstore.Path
	if cfg.Docstore.Type == config.DocstoreSQLite && filepath.Ext(path) == "" {
		path = filepath.Join(path, config.DefaultDocstoreDB)
	}
	return path
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
