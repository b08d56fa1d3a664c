package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScan_IncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "one")
	writeFile(t, root, "docs/b.md", "two")
	writeFile(t, root, "docs/deep/c.md", "three")
	writeFile(t, root, "main.go", "package main")

	s := New(root, []string{"**/*.md"}, nil)
	files, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.md", "docs/b.md", "docs/deep/c.md"}, paths(files))
}

func TestScan_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "keep")
	writeFile(t, root, "node_modules/dep/readme.md", "drop")
	writeFile(t, root, "reports/out.md", "drop")

	s := New(root, []string{"**/*.md"}, []string{"node_modules/**", "reports/**"})
	files, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.md"}, paths(files))
}

func TestScan_HiddenFilesSkipped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "keep")
	writeFile(t, root, ".hidden.md", "drop")
	writeFile(t, root, ".git/notes.md", "drop")

	s := New(root, []string{"**/*.md"}, nil)
	files, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.md"}, paths(files))
}

func TestScan_ReportsSizeAndMTime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "12345")

	s := New(root, []string{"**/*.md"}, nil)
	files, err := s.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, files, 1)
	assert.Equal(t, int64(5), files[0].Size)
	assert.Positive(t, files[0].MTimeMS)
}

func TestExistingMatches(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "one")
	writeFile(t, root, "skip.txt", "two")

	s := New(root, []string{"**/*.md"}, nil)

	got := s.ExistingMatches([]string{"a.md", "gone.md", "skip.txt"})
	assert.Equal(t, []string{"a.md"}, got)
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/*.md", "a.md", true},
		{"**/*.md", "x/y/a.md", true},
		{"**/*.md", "a.txt", false},
		{"docs/**", "docs/a.md", true},
		{"docs/**", "docs/deep/a.md", true},
		{"docs/**", "other/a.md", false},
		{"**/hooks/**", "src/hooks/a.md", true},
		{"**/hooks/**", "lib/hooks/b.md", true},
		{"**/hooks/**", "docs/intro.md", false},
		{"src/hooks/**", "src/hooks/a.md", true},
		{"src/hooks/**", "lib/hooks/b.md", false},
		{"*.md", "a.md", true},
		{"*.md", "dir/a.md", false},
		{"a?c.md", "abc.md", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" vs "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchGlob(tt.pattern, tt.path))
		})
	}
}
