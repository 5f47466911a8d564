// Package splitter implements recursive character splitting with overlap.
package splitter

import (
	"fmt"
	"iter"
)

// DefaultSeparators are tried in order when choosing a chunk boundary.
var DefaultSeparators = []string{"\n\n", "\n", " "}

// Options configures a Splitter. Sizes are measured in characters (runes).
type Options struct {
	// ChunkSize is the maximum length of a chunk.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int

	// Separators are preferred boundaries, highest priority first.
	// Nil means DefaultSeparators.
	Separators []string
}

// Validate reports whether the options describe a usable splitter.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", o.ChunkOverlap)
	}
	if o.ChunkOverlap >= o.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", o.ChunkOverlap, o.ChunkSize)
	}
	return nil
}

// Chunk is a contiguous piece of the input text.
type Chunk struct {
	Index   int    // Position of the chunk in the sequence
	Content string // The chunk text
	Start   int    // Starting rune offset (inclusive)
	End     int    // Ending rune offset (exclusive)
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// Splitter splits text into overlapping chunks.
type Splitter struct {
	opts       Options
	separators [][]rune
}

// New creates a splitter. It returns an error for invalid options.
func New(opts Options) (*Splitter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	seps := opts.Separators
	if seps == nil {
		seps = DefaultSeparators
	}

	s := &Splitter{opts: opts}
	for _, sep := range seps {
		if sep == "" {
			continue
		}
		s.separators = append(s.separators, []rune(sep))
	}
	return s, nil
}

// MustNew is like New but panics on invalid options.
func MustNew(opts Options) *Splitter {
	s, err := New(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// Options returns the options the splitter was built with.
func (s *Splitter) Options() Options {
	return s.opts
}

// Split returns the chunks of text as a lazy sequence. The sequence can be
// ranged over more than once and yields the same chunks each time.
func (s *Splitter) Split(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		r := []rune(text)
		n := len(r)
		size, overlap := s.opts.ChunkSize, s.opts.ChunkOverlap

		start := 0
		for idx := 0; start < n; idx++ {
			if n-start <= size {
				yield(Chunk{Index: idx, Content: string(r[start:]), Start: start, End: n})
				return
			}

			end := start + size
			if cut := s.boundary(r[start:end], overlap); cut > 0 {
				end = start + cut
			}

			if !yield(Chunk{Index: idx, Content: string(r[start:end]), Start: start, End: end}) {
				return
			}
			start = end - overlap
		}
	}
}

// SplitAll collects every chunk of text.
func (s *Splitter) SplitAll(text string) []Chunk {
	var chunks []Chunk
	for c := range s.Split(text) {
		chunks = append(chunks, c)
	}
	return chunks
}

// boundary returns the window-relative end just past the last usable
// separator, or 0 when only a hard cut is possible. An end at or before the
// overlap would stall the next window, so it is not usable.
func (s *Splitter) boundary(window []rune, overlap int) int {
	for _, sep := range s.separators {
		for i := len(window) - len(sep); i >= 0; i-- {
			end := i + len(sep)
			if end <= overlap {
				break
			}
			if hasPrefix(window[i:], sep) {
				return end
			}
		}
	}
	return 0
}

func hasPrefix(r, prefix []rune) bool {
	if len(r) < len(prefix) {
		return false
	}
	for i := range prefix {
		if r[i] != prefix[i] {
			return false
		}
	}
	return true
}
