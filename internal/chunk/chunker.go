// Package chunk converts file content into overlapping text chunks with
// 1-based line ranges.
package chunk

import (
	"log/slog"
	"strings"
)

// Defaults for the character windows.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunk is one retrievable window of a file.
type Chunk struct {
	// Content is the chunk text exactly as it will be embedded.
	Content string

	// StartLine and EndLine are 1-based inclusive line numbers of the
	// chunk within the extracted text it was cut from.
	StartLine int
	EndLine   int
}

// Chunker splits extracted file text into overlapping chunks.
type Chunker struct {
	size                 int
	overlap              int
	excludeCodeLanguages []string
	splitter             *Splitter
}

// New creates a Chunker. A non-positive size falls back to DefaultSize. A
// negative overlap, or one not smaller than size, falls back to
// DefaultOverlap, or to size/5 when DefaultOverlap is not smaller than size.
func New(size, overlap int, excludeCodeLanguages []string) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultOverlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	return &Chunker{
		size:                 size,
		overlap:              overlap,
		excludeCodeLanguages: excludeCodeLanguages,
		splitter:             NewSplitter(size, overlap),
	}
}

// Size returns the target chunk size in characters.
func (c *Chunker) Size() int { return c.size }

// Chunks extracts indexable text from the file content and splits it into
// chunks. An empty result with no error means the file has no indexable
// content and should be recorded as skipped.
//
// Line numbers are resolved by locating each chunk's first occurrence in the
// extracted text, so duplicated passages resolve to the first occurrence.
func (c *Chunker) Chunks(relPath, content string) []Chunk {
	text := ExtractText(relPath, content, c.excludeCodeLanguages)
	if text == "" {
		return nil
	}

	pieces := c.splitter.Split(text)
	chunks := make([]Chunk, 0, len(pieces))
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if trimmed == "" {
			continue
		}
		if strings.ContainsRune(trimmed, 0) {
			continue
		}
		// A chunk far over target size means the splitter failed on this
		// input; drop it rather than embed a degenerate window.
		if len(trimmed) > 2*c.size {
			slog.Warn("dropping oversized chunk",
				slog.String("path", relPath),
				slog.Int("size", len(trimmed)),
				slog.Int("limit", 2*c.size))
			continue
		}

		start, end := lineRange(text, trimmed)
		chunks = append(chunks, Chunk{
			Content:   trimmed,
			StartLine: start,
			EndLine:   end,
		})
	}
	return chunks
}

// lineRange returns the 1-based inclusive line range of the first occurrence
// of chunk within text.
func lineRange(text, chunk string) (int, int) {
	idx := strings.Index(text, chunk)
	if idx < 0 {
		idx = 0
	}
	start := 1 + strings.Count(text[:idx], "\n")
	end := start + strings.Count(chunk, "\n")
	return start, end
}
