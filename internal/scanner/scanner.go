// Package scanner discovers indexable files in a workspace using
// include/exclude glob patterns.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one regular file matched by the patterns.
type FileInfo struct {
	// Path is the workspace-relative path with forward slashes.
	Path string

	// MTimeMS is the modification time in milliseconds since the epoch.
	MTimeMS int64

	// Size is the file size in bytes.
	Size int64
}

// Scanner walks a workspace root and yields files matching at least one
// include pattern and no exclude pattern. Hidden files and directories
// (leading dot) are always skipped.
type Scanner struct {
	root     string
	includes []string
	excludes []string
}

// New creates a Scanner for the given absolute workspace root.
func New(root string, includes, excludes []string) *Scanner {
	return &Scanner{root: root, includes: includes, excludes: excludes}
}

// Scan walks the workspace and returns all matching files sorted by walk
// order.
func (s *Scanner) Scan(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isHidden(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if !s.Matches(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:    rel,
			MTimeMS: info.ModTime().UnixMilli(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}

	return files, nil
}

// Matches reports whether a workspace-relative path passes the pattern
// filters.
func (s *Scanner) Matches(rel string) bool {
	if isHidden(rel) {
		return false
	}
	if len(s.includes) > 0 && !MatchAny(s.includes, rel) {
		return false
	}
	if MatchAny(s.excludes, rel) {
		return false
	}
	return true
}

// ExistingMatches returns the subset of paths that still exist as regular
// files under the root and still pass the pattern filters.
func (s *Scanner) ExistingMatches(paths []string) []string {
	var out []string
	for _, rel := range paths {
		if !s.Matches(rel) {
			continue
		}
		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, rel)
	}
	return out
}

// isHidden reports whether any path segment starts with a dot.
func isHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
