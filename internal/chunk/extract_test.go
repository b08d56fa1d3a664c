package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"removes NUL bytes", "a\x00b", "ab"},
		{"normalizes CRLF", "a\r\nb\rc", "a\nb\nc"},
		{"collapses newline runs", "a\n\n\n\n\n\nb", "a\n\n\nb"},
		{"collapses horizontal whitespace", "a  \t b\nc", "a b\nc"},
		{"trims", "  \n hello \n ", "hello"},
		{"empty", "   \n\t ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestExtractText_Markdown(t *testing.T) {
	md := "# Title\n\nSome *emphasized* and **bold** text with `inline code`.\n\n" +
		"A [link](https://example.com) and an ![image](pic.png).\n"

	got := ExtractText("docs/readme.md", md, nil)

	assert.Contains(t, got, "Title")
	assert.Contains(t, got, "emphasized")
	assert.Contains(t, got, "bold")
	assert.Contains(t, got, "inline code")
	assert.Contains(t, got, "link")
	assert.Contains(t, got, "image")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
	assert.NotContains(t, got, "`")
	assert.NotContains(t, got, "https://example.com")
	assert.NotContains(t, got, "pic.png")
}

func TestExtractText_MarkdownFencedBlocks(t *testing.T) {
	md := "Intro\n\n```mermaid\ngraph TD\n```\n\n```\nplain fence content\n```\n\n```go\nfunc main() {}\n```\n"

	got := ExtractText("a.md", md, []string{"mermaid"})

	assert.NotContains(t, got, "graph TD", "excluded language is stripped")
	assert.Contains(t, got, "plain fence content", "untagged block keeps inner text")
	assert.Contains(t, got, "func main() {}", "non-excluded language keeps inner text")
}

func TestExtractText_MarkdownOnlyExcludedCode(t *testing.T) {
	md := "```mermaid\ngraph TD\nA-->B\n```\n"
	got := ExtractText("diagram.md", md, []string{"mermaid"})
	assert.Empty(t, got)
}

func TestExtractText_HTML(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style>
<script>alert("hi")</script></head>
<body><h1>Hello &amp; welcome</h1><p>1 &lt; 2</p></body></html>`

	got := ExtractText("page.html", html, nil)

	assert.Contains(t, got, "Hello & welcome")
	assert.Contains(t, got, "1 < 2")
	assert.NotContains(t, got, "alert")
	assert.NotContains(t, got, "color: red")
	assert.NotContains(t, got, "<h1>")
}

func TestExtractText_JSON(t *testing.T) {
	doc := `{"title": "Notes", "count": 3, "done": true, "tags": ["a", "b"], "nested": {"x": "deep"}}`

	got := ExtractText("data.json", doc, nil)

	assert.Contains(t, got, "Notes")
	assert.Contains(t, got, "3")
	assert.Contains(t, got, "true")
	assert.Contains(t, got, "deep")
	assert.NotContains(t, got, "{")
	assert.NotContains(t, got, "title")
}

func TestExtractText_JSONDepthLimit(t *testing.T) {
	deep := strings.Repeat(`{"k":`, 15) + `"bottom"` + strings.Repeat("}", 15)
	got := ExtractText("deep.json", deep, nil)
	assert.NotContains(t, got, "bottom")
}

func TestExtractText_InvalidJSONPassesThrough(t *testing.T) {
	got := ExtractText("broken.json", "not json at all", nil)
	assert.Equal(t, "not json at all", got)
}

func TestExtractText_OtherExtensionsPassThrough(t *testing.T) {
	got := ExtractText("notes.txt", "plain  text\n", nil)
	assert.Equal(t, "plain text", got)
}
