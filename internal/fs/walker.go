package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// Ignorer defines the interface for pattern matching.
type Ignorer interface {
	MatchesPath(path string) bool
}

// combinedIgnorer wraps two ignorers.
type combinedIgnorer struct {
	file     *gitignore.GitIgnore
	patterns *gitignore.GitIgnore
}

// MatchesPath returns true if the path matches any ignore pattern.
func (c *combinedIgnorer) MatchesPath(path string) bool {
	return c.file.MatchesPath(path) || c.patterns.MatchesPath(path)
}

// FileWalker implements Walker for discovering source files.
type FileWalker struct {
	opts    WalkOptions
	ignorer Ignorer
	stats   WalkStats
	extSet  map[string]bool
}

// NewFileWalker creates a new file walker.
func NewFileWalker(opts WalkOptions) (*FileWalker, error) {
	// Ensure root is absolute
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	opts.Root = root

	// Check root exists
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	if opts.IgnoreFile == "" {
		opts.IgnoreFile = DefaultIgnoreFile
	}

	w := &FileWalker{
		opts: opts,
	}

	// Build extension set for fast lookup
	if len(opts.Extensions) > 0 {
		w.extSet = make(map[string]bool)
		for _, ext := range opts.Extensions {
			// Normalize extension to have leading dot
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			w.extSet[strings.ToLower(ext)] = true
		}
	}

	w.initIgnorer()

	return w, nil
}

// initIgnorer initializes the gitignore-syntax matcher.
func (w *FileWalker) initIgnorer() {
	patterns := append([]string{}, w.opts.IgnorePatterns...)
	compiled := gitignore.CompileIgnoreLines(patterns...)

	ignorePath := filepath.Join(w.opts.Root, w.opts.IgnoreFile)
	if _, err := os.Stat(ignorePath); err == nil {
		gi, err := gitignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			log.Warn("Failed to parse ignore file", "path", ignorePath, "error", err)
		} else {
			w.ignorer = &combinedIgnorer{file: gi, patterns: compiled}
			return
		}
	}

	w.ignorer = compiled
}

// Walk traverses the directory in lexical order.
func (w *FileWalker) Walk(fn func(FileInfo) error) error {
	w.stats = WalkStats{} // Reset stats

	return filepath.WalkDir(w.opts.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil // Skip errors, continue walking
		}

		// Get relative path for pattern matching
		relPath, err := filepath.Rel(w.opts.Root, path)
		if err != nil {
			relPath = path
		}

		if d.IsDir() {
			if path == w.opts.Root {
				return nil
			}
			if !w.opts.Recursive || w.shouldSkipDir(d.Name(), relPath) {
				w.stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		// Check max file count
		if w.opts.MaxFileCount > 0 && w.stats.FilesFound >= w.opts.MaxFileCount {
			return filepath.SkipAll
		}

		if !w.opts.IncludeProcessed && IsProcessed(d.Name()) {
			w.stats.FilesProcessed++
			return nil
		}

		// Skip if file should be ignored
		if w.shouldSkipFile(d.Name(), relPath) {
			w.stats.FilesSkipped++
			return nil
		}

		// Check extension filter
		if w.extSet != nil {
			ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ProcessedSuffix)))
			if !w.extSet[ext] {
				w.stats.FilesSkipped++
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			log.Debug("Failed to get file info", "path", path, "error", err)
			return nil
		}
		if !info.Mode().IsRegular() {
			w.stats.FilesSkipped++
			return nil
		}

		// Check file size
		if w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize {
			log.Warn("Skipping oversized file", "path", path, "size", info.Size())
			w.stats.FilesSkipped++
			w.stats.SkippedBytes += info.Size()
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			log.Debug("Failed to hash file", "path", path, "error", err)
			return nil
		}

		fileInfo := FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Hash:    hash,
		}

		w.stats.FilesFound++
		w.stats.TotalBytes += info.Size()

		return fn(fileInfo)
	})
}

// Stats returns the walk statistics.
func (w *FileWalker) Stats() WalkStats {
	return w.stats
}

// shouldSkipDir checks if a directory should be skipped.
func (w *FileWalker) shouldSkipDir(name, relPath string) bool {
	// Skip hidden directories unless configured otherwise
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	// Check ignore patterns
	if w.ignorer != nil && w.ignorer.MatchesPath(relPath+"/") {
		return true
	}

	return false
}

// shouldSkipFile checks if a file should be skipped.
func (w *FileWalker) shouldSkipFile(name, relPath string) bool {
	// Skip hidden files unless configured otherwise
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}

	// Check ignore patterns
	if w.ignorer != nil && w.ignorer.MatchesPath(relPath) {
		return true
	}

	return false
}

// Pending returns the unprocessed files of a directory, in lexical order.
func Pending(opts WalkOptions) ([]FileInfo, WalkStats, error) {
	opts.IncludeProcessed = false
	w, err := NewFileWalker(opts)
	if err != nil {
		return nil, WalkStats{}, err
	}

	var files []FileInfo
	err = w.Walk(func(info FileInfo) error {
		files = append(files, info)
		return nil
	})
	return files, w.Stats(), err
}

// IsProcessed reports whether name carries the processed marker.
func IsProcessed(name string) bool {
	return strings.HasSuffix(name, ProcessedSuffix)
}

// MarkProcessed renames path to path+ProcessedSuffix. A rename is atomic, so
// the file is either pending or processed, never both.
func MarkProcessed(path string) (string, error) {
	if IsProcessed(path) {
		return path, nil
	}
	target := path + ProcessedSuffix
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("processed marker already exists: %s", target)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to check processed marker: %w", err)
	}
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("failed to mark file processed: %w", err)
	}
	return target, nil
}

// hashFile computes the xxhash of a file's contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// HashContent computes the xxhash of content bytes.
func HashContent(content []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(content))
}

// isBinaryContent checks if content appears to be binary.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	// Check for null bytes (strong indicator of binary)
	for _, b := range content {
		if b == 0 {
			return true
		}
	}

	// Count non-printable characters
	nonPrintable := 0
	for _, b := range content {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}

	// If more than 30% non-printable, consider binary
	return float64(nonPrintable)/float64(len(content)) > 0.3
}
