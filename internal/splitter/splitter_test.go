package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconstruct(text string, chunks []Chunk) string {
	r := []rune(text)
	var b strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(string(r[c.Start:c.End]))
		} else {
			b.WriteString(string(r[prevEnd:c.End]))
		}
		prevEnd = c.End
	}
	return b.String()
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"parent profile", Options{ChunkSize: 2000, ChunkOverlap: 200}, false},
		{"child profile", Options{ChunkSize: 200, ChunkOverlap: 20}, false},
		{"no overlap", Options{ChunkSize: 10}, false},
		{"zero size", Options{ChunkSize: 0}, true},
		{"negative overlap", Options{ChunkSize: 10, ChunkOverlap: -1}, true},
		{"overlap equals size", Options{ChunkSize: 10, ChunkOverlap: 10}, true},
		{"overlap exceeds size", Options{ChunkSize: 10, ChunkOverlap: 20}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := New(Options{ChunkSize: 5, ChunkOverlap: 5})
	assert.Error(t, err)
}

func TestSplitEmpty(t *testing.T) {
	s := MustNew(Options{ChunkSize: 10, ChunkOverlap: 2})
	assert.Empty(t, s.SplitAll(""))
}

func TestSplitShortText(t *testing.T) {
	s := MustNew(Options{ChunkSize: 200, ChunkOverlap: 20})
	chunks := s.SplitAll("a short document")

	require.Len(t, chunks, 1)
	assert.Equal(t, "a short document", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 16, chunks[0].End)
}

func TestSplitParentScenario(t *testing.T) {
	text := strings.Repeat("x", 3000)
	parent := MustNew(Options{ChunkSize: 2000, ChunkOverlap: 200})

	parents := parent.SplitAll(text)
	require.Len(t, parents, 2)
	assert.Equal(t, 0, parents[0].Start)
	assert.Equal(t, 2000, parents[0].End)
	assert.Equal(t, 1800, parents[1].Start)
	assert.Equal(t, 3000, parents[1].End)

	child := MustNew(Options{ChunkSize: 200, ChunkOverlap: 20})
	children := child.SplitAll(parents[0].Content)
	require.Len(t, children, 11)
	for i, c := range children {
		assert.Equal(t, i*180, c.Start)
		assert.Equal(t, i, c.Index)
	}
	assert.Equal(t, 2000, children[10].End)
}

func TestSplitPrefersSeparators(t *testing.T) {
	t.Run("paragraph", func(t *testing.T) {
		s := MustNew(Options{ChunkSize: 12, ChunkOverlap: 2})
		chunks := s.SplitAll("aaaa bbbb\n\ncccc dddd")

		require.Len(t, chunks, 2)
		assert.Equal(t, "aaaa bbbb\n\n", chunks[0].Content)
		assert.Equal(t, "\n\ncccc dddd", chunks[1].Content)
	})

	t.Run("space", func(t *testing.T) {
		s := MustNew(Options{ChunkSize: 10})
		chunks := s.SplitAll("alpha beta gamma delta")

		var got []string
		for _, c := range chunks {
			got = append(got, c.Content)
		}
		assert.Equal(t, []string{"alpha ", "beta ", "gamma ", "delta"}, got)
	})

	t.Run("custom separators", func(t *testing.T) {
		s := MustNew(Options{ChunkSize: 6, Separators: []string{";"}})
		chunks := s.SplitAll("ab;cd;ef gh")

		require.NotEmpty(t, chunks)
		assert.Equal(t, "ab;cd;", chunks[0].Content)
	})
}

func TestSplitInvariants(t *testing.T) {
	inputs := map[string]string{
		"prose":   strings.Repeat("The quick brown fox jumps over the lazy dog.\n", 120),
		"paras":   strings.Repeat("Lorem ipsum dolor sit amet.\n\nConsectetur adipiscing elit ", 60),
		"runes":   strings.Repeat("日本語のテキスト ", 400),
		"nospace": strings.Repeat("abcdefghij", 517),
		"mixed":   "short\n" + strings.Repeat("w ", 900) + "\n\n" + strings.Repeat("z", 700),
	}
	profiles := []Options{
		{ChunkSize: 2000, ChunkOverlap: 200},
		{ChunkSize: 200, ChunkOverlap: 20},
		{ChunkSize: 50, ChunkOverlap: 0},
	}

	for name, text := range inputs {
		for _, opts := range profiles {
			s := MustNew(opts)
			chunks := s.SplitAll(text)
			require.NotEmpty(t, chunks, name)

			assert.Equal(t, text, reconstruct(text, chunks), "%s: reconstruction", name)
			assert.Equal(t, utf8.RuneCountInString(text), chunks[len(chunks)-1].End, name)

			for i, c := range chunks {
				assert.LessOrEqual(t, c.Len(), opts.ChunkSize, "%s: chunk %d too large", name, i)
				assert.Equal(t, utf8.RuneCountInString(c.Content), c.Len(), name)
				if i > 0 {
					prev := chunks[i-1]
					assert.Equal(t, prev.End-opts.ChunkOverlap, c.Start, "%s: overlap at %d", name, i)
					assert.Greater(t, c.Start, prev.Start, "%s: no progress at %d", name, i)
				}
			}
		}
	}
}

func TestSplitRestartable(t *testing.T) {
	s := MustNew(Options{ChunkSize: 30, ChunkOverlap: 5})
	text := strings.Repeat("restartable sequences ", 20)
	seq := s.Split(text)

	var first, second []Chunk
	for c := range seq {
		first = append(first, c)
	}
	for c := range seq {
		second = append(second, c)
	}
	assert.Equal(t, first, second)

	// Stopping early must not panic and yields a prefix
	var partial []Chunk
	for c := range seq {
		partial = append(partial, c)
		if len(partial) == 2 {
			break
		}
	}
	assert.Equal(t, first[:2], partial)
}
