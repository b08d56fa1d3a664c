package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := New(1000, 200, nil)

	chunks := c.Chunks("a.md", "hello world")

	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 1, chunks[0].EndLine)
}

func TestChunker_EmptyFileYieldsNoChunks(t *testing.T) {
	c := New(1000, 200, nil)
	assert.Empty(t, c.Chunks("a.md", ""))
	assert.Empty(t, c.Chunks("a.md", "   \n\n  "))
}

func TestChunker_OverlappingWindows(t *testing.T) {
	c := New(1000, 200, nil)
	// 500 five-char words with no other structure: windows stride by
	// size-overlap = 800 characters.
	text := strings.TrimSpace(strings.Repeat("word ", 500))

	chunks := c.Chunks("a.txt", text)

	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 1000)
	}
	// Consecutive chunks share the overlap region.
	tail := chunks[0].Content[len(chunks[0].Content)-50:]
	assert.Contains(t, chunks[1].Content, strings.TrimSpace(tail))
}

func TestChunker_WindowCountsMatchStride(t *testing.T) {
	c := New(1000, 200, nil)

	assert.Len(t, c.Chunks("a.txt", strings.Repeat("x", 2500)), 3)
	assert.Len(t, c.Chunks("b.txt", strings.Repeat("x", 3000)), 4)
	assert.Len(t, c.Chunks("c.txt", strings.Repeat("x", 500)), 1)
}

func TestChunker_PrefersParagraphBoundaries(t *testing.T) {
	c := New(100, 20, nil)
	para1 := strings.Repeat("a", 60)
	para2 := strings.Repeat("b", 60)
	text := para1 + "\n\n" + para2

	chunks := c.Chunks("a.md", text)

	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0].Content)
	assert.Equal(t, para2, chunks[1].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[1].StartLine)
}

func TestChunker_NewlinesSurviveInChunks(t *testing.T) {
	c := New(1000, 200, nil)
	text := "line one\nline two\nline three"

	chunks := c.Chunks("a.txt", text)

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestChunker_DuplicatePassageResolvesToFirstOccurrence(t *testing.T) {
	c := New(100, 20, nil)
	passage := strings.Repeat("z", 80)
	text := passage + "\n\n" + strings.Repeat("m", 80) + "\n\n" + passage

	chunks := c.Chunks("a.txt", text)

	require.Len(t, chunks, 3)
	assert.Equal(t, chunks[0].Content, chunks[2].Content)
	// Both copies report the line of the first occurrence.
	assert.Equal(t, chunks[0].StartLine, chunks[2].StartLine)
}

func TestLineRange(t *testing.T) {
	text := "alpha\nbeta\ngamma\ndelta"

	start, end := lineRange(text, "beta\ngamma")
	assert.Equal(t, 2, start)
	assert.Equal(t, 3, end)

	start, end = lineRange(text, "delta")
	assert.Equal(t, 4, start)
	assert.Equal(t, 4, end)
}

func TestSplitRetaining(t *testing.T) {
	parts := splitRetaining("a\n\nb\n\nc", "\n\n")
	assert.Equal(t, []string{"a\n\n", "b\n\n", "c"}, parts)

	runes := splitRetaining("ab", "")
	assert.Equal(t, []string{"a", "b"}, runes)
}
