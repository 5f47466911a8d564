package retriever

import "time"

// Metadata keys set on every document and chunk.
const (
	MetaCollection  = "collection"
	MetaSource      = "source"
	MetaProcessDate = "processDate"
	MetaHash        = "hash"
	MetaTitle       = "title"
	MetaParentID    = "parent_id"
)

// Document is a loaded source document.
type Document struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Source returns the document's source path, or "" if unset.
func (d Document) Source() string {
	s, _ := d.Metadata[MetaSource].(string)
	return s
}

// ParentChunk is a parent chunk as stored in the blob store and returned by
// Retrieve.
type ParentChunk struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Index      int            `json:"index"` // Position within the source document
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	// Set by Retrieve only
	Distance float64 `json:"distance,omitempty"` // Best child distance
	Score    float64 `json:"score,omitempty"`    // 1 - Distance
}

// Outcome is the result of adding one document.
type Outcome struct {
	Source   string `json:"source"`
	Parents  int    `json:"parents"`
	Children int    `json:"children"`
	Err      error  `json:"-"`
}

// OK reports whether the document was fully added.
func (o Outcome) OK() bool {
	return o.Err == nil
}
