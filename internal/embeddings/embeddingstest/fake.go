// Package embeddingstest provides a deterministic embeddings.Service for tests.
package embeddingstest

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/nickcecere/strata/internal/embeddings"
)

// DefaultDimensions is the vector size produced by New.
const DefaultDimensions = 64

// Fake embeds text by hashing character trigrams into buckets, so equal
// texts get equal vectors and similar texts get close ones.
type Fake struct {
	dims int

	mu        sync.Mutex
	calls     int
	embedded  int
	failOn    string
	failAfter int
}

// New returns a fake with DefaultDimensions.
func New() *Fake {
	return &Fake{dims: DefaultDimensions, failAfter: -1}
}

// FailOn makes every call whose input contains substr fail.
func (f *Fake) FailOn(substr string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOn = substr
	return f
}

// FailAfter makes every call fail once n calls have succeeded.
func (f *Fake) FailAfter(n int) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAfter = n
	return f
}

// Calls returns the number of successful Embed* calls.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Embedded returns the number of texts embedded so far.
func (f *Fake) Embedded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedded
}

func (f *Fake) check(texts []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && f.calls >= f.failAfter {
		return fmt.Errorf("fake embedder: call limit reached")
	}
	if f.failOn != "" {
		for _, t := range texts {
			if strings.Contains(t, f.failOn) {
				return fmt.Errorf("fake embedder: refusing input containing %q", f.failOn)
			}
		}
	}
	f.calls++
	f.embedded += len(texts)
	return nil
}

// Vector returns the embedding of text without counting a call.
func (f *Fake) Vector(text string) []float32 {
	v := make([]float32, f.dims)
	v[0] = 0.01 // never the zero vector
	r := []rune(strings.ToLower(text))
	if len(r) < 3 {
		h := fnv.New32a()
		h.Write([]byte(string(r)))
		v[1+int(h.Sum32()%uint32(f.dims-1))] += 1
		return v
	}
	for i := 0; i+3 <= len(r); i++ {
		h := fnv.New32a()
		h.Write([]byte(string(r[i : i+3])))
		v[1+int(h.Sum32()%uint32(f.dims-1))] += 1
	}
	return v
}

func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.check([]string{text}); err != nil {
		return nil, err
	}
	return f.Vector(text), nil
}

func (f *Fake) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.Embed(ctx, text)
}

func (f *Fake) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if err := f.check(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.Vector(t)
	}
	return out, nil
}

func (f *Fake) Dimensions() int                { return f.dims }
func (f *Fake) Provider() embeddings.Provider { return "fake" }
func (f *Fake) ModelName() string             { return "trigram-hash" }

var _ embeddings.Service = (*Fake)(nil)
