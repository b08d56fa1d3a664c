package chunk

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// maxJSONDepth bounds recursion when flattening JSON documents.
const maxJSONDepth = 10

var (
	fencedBlockRe = regexp.MustCompile("(?ms)^```([^\\n`]*)\\n(.*?)^```[ \t]*$")
	inlineCodeRe  = regexp.MustCompile("`([^`\n]*)`")
	imageRe       = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRe        = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	emphasisRe    = regexp.MustCompile(`(\*\*|__|\*|_)([^*_\n]+)(\*\*|__|\*|_)`)
	headingRe     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	scriptStyleRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]+>`)
)

// htmlEntities is the small fixed set of entities decoded during HTML
// extraction.
var htmlEntities = map[string]string{
	"&amp;":  "&",
	"&lt;":   "<",
	"&gt;":   ">",
	"&quot;": `"`,
	"&#39;":  "'",
	"&apos;": "'",
	"&nbsp;": " ",
}

// ExtractText converts raw file content into indexable plain text based on
// the file extension, then sanitizes it. An empty result means the file has
// nothing to index.
func ExtractText(relPath, content string, excludeCodeLanguages []string) string {
	var text string
	switch strings.ToLower(path.Ext(relPath)) {
	case ".md", ".markdown":
		text = extractMarkdown(content, excludeCodeLanguages)
	case ".html", ".htm":
		text = extractHTML(content)
	case ".json":
		text = extractJSON(content)
	default:
		text = content
	}
	return Sanitize(text)
}

// extractMarkdown strips markdown syntax, keeping the readable content.
// Fenced code blocks whose language tag is excluded are removed entirely;
// other blocks keep their inner text.
func extractMarkdown(content string, excludeCodeLanguages []string) string {
	excluded := make(map[string]bool, len(excludeCodeLanguages))
	for _, lang := range excludeCodeLanguages {
		excluded[strings.ToLower(strings.TrimSpace(lang))] = true
	}

	text := fencedBlockRe.ReplaceAllStringFunc(content, func(block string) string {
		m := fencedBlockRe.FindStringSubmatch(block)
		lang := strings.ToLower(strings.TrimSpace(m[1]))
		if lang != "" && excluded[lang] {
			return ""
		}
		return m[2]
	})

	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = imageRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	// Apply twice so nested markers (***bold italic***) unwrap fully.
	text = emphasisRe.ReplaceAllString(text, "$2")
	text = emphasisRe.ReplaceAllString(text, "$2")
	text = headingRe.ReplaceAllString(text, "")

	return text
}

// extractHTML removes script/style blocks, strips tags, and decodes a small
// fixed set of entities.
func extractHTML(content string) string {
	text := scriptStyleRe.ReplaceAllString(content, " ")
	text = htmlTagRe.ReplaceAllString(text, " ")
	for entity, replacement := range htmlEntities {
		text = strings.ReplaceAll(text, entity, replacement)
	}
	return text
}

// extractJSON concatenates the scalar leaves of a JSON document. Documents
// that fail to parse pass through unchanged.
func extractJSON(content string) string {
	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return content
	}

	var parts []string
	flattenJSON(doc, 0, &parts)
	return strings.Join(parts, " ")
}

func flattenJSON(node any, depth int, out *[]string) {
	if depth > maxJSONDepth {
		return
	}
	switch v := node.(type) {
	case string:
		if v != "" {
			*out = append(*out, v)
		}
	case float64:
		*out = append(*out, strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), "."))
	case bool:
		*out = append(*out, fmt.Sprintf("%t", v))
	case []any:
		for _, item := range v {
			flattenJSON(item, depth+1, out)
		}
	case map[string]any:
		// Deterministic output regardless of map iteration order.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(v[k], depth+1, out)
		}
	}
}

var (
	manyNewlinesRe = regexp.MustCompile(`\n{4,}`)
	horizontalWSRe = regexp.MustCompile(`[ \t\f\v]+`)
)

// Sanitize normalizes extracted text: NUL bytes removed, line endings
// normalized, newline runs of 4+ collapsed to 3, horizontal whitespace runs
// collapsed to single spaces with newlines preserved, result trimmed.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = manyNewlinesRe.ReplaceAllString(text, "\n\n\n")
	text = horizontalWSRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
