package scanner

import (
	"path"
	"strings"
)

// MatchGlob reports whether a slash-separated relative path matches a glob
// pattern. Patterns follow the usual path.Match syntax per segment, with
// "**" matching zero or more whole segments.
func MatchGlob(pattern, relPath string) bool {
	pat := splitSegments(pattern)
	segs := splitSegments(relPath)
	return matchSegments(pat, segs)
}

// MatchAny reports whether relPath matches at least one of the patterns.
func MatchAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if MatchGlob(p, relPath) {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}

	if pat[0] == "**" {
		// "**" consumes zero or more leading segments.
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}

	if len(segs) == 0 {
		return false
	}

	ok, err := path.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}
