package ingest

import "time"

// Status summarizes how a collection's ingestion went.
type Status string

const (
	StatusSucceeded Status = "succeeded" // every pending file was indexed
	StatusPartial   Status = "partial"   // some files failed
	StatusFailed    Status = "failed"    // nothing was indexed
	StatusSkipped   Status = "skipped"   // nothing was pending
)

// Result is the outcome of ingesting one collection.
type Result struct {
	Collection   string        `json:"collection"`
	Status       Status        `json:"status"`
	FilesFound   int           `json:"files_found"`
	FilesIndexed int           `json:"files_indexed"`
	FilesFailed  int           `json:"files_failed"`
	Parents      int           `json:"parents"`
	Children     int           `json:"children"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`

	// Err is set when the collection could not be processed at all, or the
	// run was cancelled.
	Err error `json:"-"`
}

func (r *Result) fail(msg string) {
	r.FilesFailed++
	r.Errors = append(r.Errors, msg)
}

func (r *Result) finish(start time.Time) {
	r.Duration = time.Since(start)
	switch {
	case r.FilesFound == 0 && r.Err == nil:
		r.Status = StatusSkipped
	case r.FilesIndexed == 0:
		r.Status = StatusFailed
	case r.FilesFailed > 0 || r.Err != nil:
		r.Status = StatusPartial
	default:
		r.Status = StatusSucceeded
	}
}
