package chunk

import (
	"strings"
)

// defaultSeparators is the preference order for split points. Separators are
// retained in the output so newline structure survives chunking.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter splits text into overlapping character windows, preferring to
// break at the largest separator that appears in the text.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter with target chunk size and overlap, both in
// characters.
func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{size: size, overlap: overlap}
}

// Split returns the chunk texts for the given input. Each returned piece is
// a contiguous substring of the input; consecutive pieces overlap by roughly
// the configured overlap.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	return s.splitText(text, defaultSeparators)
}

func (s *Splitter) splitText(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var remaining []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = candidate
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitRetaining(text, sep)

	var final []string
	var good []string
	for _, piece := range splits {
		if len(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(remaining) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, remaining)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// splitRetaining splits text on sep, keeping the separator attached to the
// end of each preceding piece. An empty separator splits into single runes.
func splitRetaining(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		out := make([]string, len(runes))
		for i, r := range runes {
			out[i] = string(r)
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// merge joins small pieces into chunks near the target size, carrying an
// overlap window between consecutive chunks.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	flush := func() {
		if len(window) == 0 {
			return
		}
		doc := strings.Join(window, "")
		if strings.TrimSpace(doc) != "" {
			chunks = append(chunks, doc)
		}
	}

	for _, piece := range pieces {
		if total+len(piece) > s.size && len(window) > 0 {
			flush()
			// Shrink the window down to the overlap before continuing.
			for total > s.overlap || (total+len(piece) > s.size && total > 0) {
				total -= len(window[0])
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += len(piece)
	}
	flush()
	return chunks
}
