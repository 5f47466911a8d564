// Package fs discovers pending source files and loads their text.
package fs

import (
	"time"
)

// ProcessedSuffix is appended to a source file's name once it is ingested.
const ProcessedSuffix = ".processed"

// DefaultIgnoreFile is the per-directory ignore file (gitignore syntax).
const DefaultIgnoreFile = ".strataignore"

// FileInfo represents metadata about a source file.
type FileInfo struct {
	Path    string    // Absolute path to the file
	RelPath string    // Path relative to the root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // xxhash of file contents
}

// WalkOptions configures the file walker.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// Recursive descends into subdirectories. Collections are flat by
	// default, so only the root's own files are returned.
	Recursive bool

	// MaxFileSize is the maximum file size to process (in bytes).
	MaxFileSize int64

	// MaxFileCount is the maximum number of files to return.
	MaxFileCount int

	// IgnorePatterns are additional patterns to ignore (gitignore syntax).
	IgnorePatterns []string

	// IncludeHidden includes hidden files and directories.
	IncludeHidden bool

	// IncludeProcessed also returns files carrying the processed marker.
	IncludeProcessed bool

	// IgnoreFile is read from the root if present. Empty means DefaultIgnoreFile.
	IgnoreFile string

	// Extensions limits to specific file extensions (e.g., ".html", ".pdf").
	// Empty means all files.
	Extensions []string
}

// DefaultWalkOptions returns sensible defaults for walking a collection directory.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize: 50 * 1024 * 1024, // 50MB
		Extensions:  []string{".html"},
	}
}

// Walker walks a directory tree and yields files.
type Walker interface {
	// Walk walks the directory tree and calls fn for each file.
	// The walk stops if fn returns an error.
	Walk(fn func(FileInfo) error) error

	// Stats returns statistics about the walk.
	Stats() WalkStats
}

// WalkStats contains statistics from a directory walk.
type WalkStats struct {
	FilesFound     int   // Total files found
	FilesSkipped   int   // Files skipped due to size/pattern/etc
	FilesProcessed int   // Files skipped because they carry the processed marker
	DirsSkipped    int   // Directories skipped
	TotalBytes     int64 // Total bytes of files found
	SkippedBytes   int64 // Total bytes of skipped files
}
