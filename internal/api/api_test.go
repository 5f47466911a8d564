package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/nickcecere/strata/internal/blobstore"
	"github.com/nickcecere/strata/internal/embeddings/embeddingstest"
	"github.com/nickcecere/strata/internal/ingest"
	"github.com/nickcecere/strata/internal/registry"
	"github.com/nickcecere/strata/internal/retriever"
	"github.com/nickcecere/strata/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHandler(t *testing.T) (http.Handler, string) {
	t.Helper()
	dataDir := t.TempDir()
	sourceDir := t.TempDir()

	index, err := store.NewSQLiteStore(filepath.Join(dataDir, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	blobs, err := blobstore.NewLocalStore(filepath.Join(dataDir, "parents"))
	require.NoError(t, err)

	reg, err := registry.New(registry.Config{
		Index:             index,
		Blobs:             blobs,
		Embedder:          embeddingstest.New(),
		Options:           retriever.DefaultOptions(),
		DefaultCollection: "default",
	})
	require.NoError(t, err)

	handler := NewHandler(Deps{
		Registry:  reg,
		Pipeline:  ingest.New(reg, nil, ingest.Options{}),
		SourceDir: sourceDir,
	})
	return handler, sourceDir
}

func addSource(t *testing.T, sourceDir, collection, file, body string) {
	t.Helper()
	dir := filepath.Join(sourceDir, collection)
	require.NoError(t, os.MkdirAll(dir, 0755))
	page := "<html><head><title>" + file + "</title></head><body><p>" + body + "</p></body></html>"
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(page), 0644))
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h, _ := setupHandler(t)

	rec := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngestAndRetrieve(t *testing.T) {
	h, sourceDir := setupHandler(t)
	addSource(t, sourceDir, "manuals", "pump.html", "the pump must be primed before starting")
	addSource(t, sourceDir, "manuals", "valve.html", "close the valve slowly to avoid hammer")

	rec := do(t, h, http.MethodPost, "/collections/manuals/ingest")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ingest.Result](t, rec)
	assert.Equal(t, ingest.StatusSucceeded, res.Status)
	assert.Equal(t, 2, res.FilesIndexed)

	q := url.Values{"q": {"close the valve slowly to avoid hammer"}, "collection": {"manuals"}, "k": {"1"}}
	rec = do(t, h, http.MethodGet, "/retrieve?"+q.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[RetrieveResponse](t, rec)
	assert.Equal(t, "manuals", body.Collection)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "valve.html", body.Results[0].Metadata[retriever.MetaSource])

	rec = do(t, h, http.MethodGet, "/collections")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Collections []CollectionInfo `json:"collections"`
	}](t, rec)
	require.Len(t, list.Collections, 1)
	assert.Equal(t, "manuals", list.Collections[0].Name)
	assert.Equal(t, 2, list.Collections[0].ParentCount)
	assert.Equal(t, "ready", list.Collections[0].State)
}

func TestIngestAll(t *testing.T) {
	h, sourceDir := setupHandler(t)
	addSource(t, sourceDir, "a", "x.html", "alpha")
	addSource(t, sourceDir, "b", "y.html", "beta")

	rec := do(t, h, http.MethodPost, "/ingest")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Results map[string]ingest.Result `json:"results"`
	}](t, rec)
	assert.Len(t, body.Results, 2)
	assert.Equal(t, ingest.StatusSucceeded, body.Results["a"].Status)
}

func TestIngestInvalidName(t *testing.T) {
	h, _ := setupHandler(t)

	rec := do(t, h, http.MethodPost, "/collections/.hidden/ingest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetrieveErrors(t *testing.T) {
	h, _ := setupHandler(t)

	rec := do(t, h, http.MethodGet, "/retrieve?q=")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/retrieve?q=hello&k=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/retrieve?q=hello&collection=missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetrieveDefaultOnEmptyIndex(t *testing.T) {
	h, _ := setupHandler(t)

	rec := do(t, h, http.MethodGet, "/retrieve?q=hello")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[RetrieveResponse](t, rec)
	assert.Equal(t, "default", body.Collection)
	assert.NotNil(t, body.Results)
	assert.Empty(t, body.Results)

	rec = do(t, h, http.MethodGet, "/retrieve?q=hello&collection=default")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteCollection(t *testing.T) {
	h, sourceDir := setupHandler(t)
	addSource(t, sourceDir, "docs", "a.html", "some words")

	rec := do(t, h, http.MethodPost, "/collections/docs/ingest")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/collections/docs")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/collections/docs")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/retrieve?q=words&collection=docs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
