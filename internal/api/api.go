// Package api serves collections and retrieval over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nickcecere/strata/internal/ingest"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/retriever"
	"github.com/nickcecere/strata/internal/store"
)

const maxTopK = 100

// Deps are the handler's collaborators.
type Deps struct {
	Registry *registry.Registry
	Pipeline *ingest.Pipeline

	// SourceDir holds one subdirectory per collection.
	SourceDir string
}

// CollectionInfo describes a collection in list responses.
type CollectionInfo struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Dimensions  int            `json:"dimensions"`
	ParentCount int            `json:"parent_count"`
	ChildCount  int            `json:"child_count"`
	State       string         `json:"state"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RetrieveResponse is the body of GET /retrieve.
type RetrieveResponse struct {
	Collection string                  `json:"collection"`
	Query      string                  `json:"query"`
	Results    []retriever.ParentChunk `json:"results"`
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", handleHealth)
	r.Get("/collections", handleListCollections(deps))
	r.Post("/collections/{name}/ingest", handleIngest(deps))
	r.Delete("/collections/{name}", handleDeleteCollection(deps))
	r.Post("/ingest", handleIngestAll(deps))
	r.Get("/retrieve", handleRetrieve(deps))

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleListCollections(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		colls, err := deps.Registry.List(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list collections: %v", err)
			return
		}

		infos := make([]CollectionInfo, 0, len(colls))
		for _, c := range colls {
			info := collectionInfo(c, deps.Registry)
			if stats, err := deps.Registry.Stats(r.Context(), c); err == nil {
				info.ParentCount = stats.ParentCount
				info.ChildCount = stats.ChildCount
			} else {
				log.Warn("Failed to get stats", "collection", c.Name, "error", err)
			}
			infos = append(infos, info)
		}
		writeJSON(w, http.StatusOK, map[string]any{"collections": infos})
	}
}

func collectionInfo(c store.Collection, reg *registry.Registry) CollectionInfo {
	return CollectionInfo{
		Name:       c.Name,
		Metadata:   c.Metadata,
		Dimensions: c.Dimensions,
		State:      reg.State(registry.Named(c.Name)).String(),
		UpdatedAt:  c.UpdatedAt,
	}
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if !validCollectionName(name) {
			httpError(w, http.StatusBadRequest, "invalid collection name %q", name)
			return
		}

		res := deps.Pipeline.IngestCollection(r.Context(), name, filepath.Join(deps.SourceDir, name))
		code := http.StatusOK
		if res.Status == ingest.StatusFailed {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, res)
	}
}

func handleIngestAll(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := deps.Pipeline.InitAll(r.Context(), deps.SourceDir)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func handleDeleteCollection(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		err := deps.Registry.DeleteCollection(r.Context(), registry.Named(name))
		if errors.Is(err, registry.ErrNotFound) {
			httpError(w, http.StatusNotFound, "collection %q not found", name)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to delete collection: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRetrieve(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := q.Get("q")
		if strings.TrimSpace(query) == "" {
			httpError(w, http.StatusBadRequest, "q is required")
			return
		}

		var opts retriever.RetrieveOptions
		if k := q.Get("k"); k != "" {
			n, err := strconv.Atoi(k)
			if err != nil || n < 1 || n > maxTopK {
				httpError(w, http.StatusBadRequest, "k must be between 1 and %d", maxTopK)
				return
			}
			opts.TopK = n
		}

		name := registry.Named(q.Get("collection"))
		ret, err := deps.Registry.Lookup(r.Context(), name)
		if errors.Is(err, registry.ErrNotFound) {
			httpError(w, http.StatusNotFound, "collection %q not found", deps.Registry.Resolve(name))
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}

		results, err := ret.RetrieveWithOptions(r.Context(), query, opts)
		if err != nil {
			var consistency *retriever.ConsistencyError
			if errors.As(err, &consistency) {
				log.Error("Index references missing parent", "collection", consistency.Collection, "parent", consistency.ParentID)
			}
			httpError(w, http.StatusInternalServerError, "retrieve failed: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, RetrieveResponse{
			Collection: ret.Name(),
			Query:      query,
			Results:    results,
		})
	}
}

func validCollectionName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".") && !strings.ContainsAny(name, `/\`)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to write response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"status":  code,
		},
	})
}
