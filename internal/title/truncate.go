// Package title implements the Chat Title Pipeline (§4.H): deduplicated,
// fingerprinted background generation of a short title from a chat's
// submitted-prompt history.
package title

import "strings"

// MaxTitleChars is the cap a generated title is truncated to.
const MaxTitleChars = 72

// cleanBreakChars are preferred truncation points; the rightmost one in the
// second half of the window wins, whichever character it is.
var cleanBreakChars = []rune{'.', '-', '|', ':', ';', ','}

// Truncate shortens s to at most MaxTitleChars, preferring a clean break on
// punctuation near the cut, falling back to a word boundary, then a hard
// cut with an ellipsis (§4.H step 5, "_truncate_title").
func Truncate(s string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= MaxTitleChars {
		return s
	}

	runes := []rune(s)
	window := runes[:MaxTitleChars]

	if cut, ok := lastCleanBreak(window); ok {
		return strings.TrimSpace(string(window[:cut]))
	}

	if cut, ok := lastWordBreak(window); ok {
		return strings.TrimSpace(string(window[:cut])) + "…"
	}

	return strings.TrimSpace(string(window[:MaxTitleChars-1])) + "…"
}

func lastCleanBreak(window []rune) (int, bool) {
	best := -1
	for i := len(window) - 1; i >= 0 && i > len(window)/2; i-- {
		for _, c := range cleanBreakChars {
			if window[i] == c {
				if best == -1 {
					best = i
				}
			}
		}
		if best != -1 {
			return best, true
		}
	}
	return 0, false
}

func lastWordBreak(window []rune) (int, bool) {
	for i := len(window) - 1; i > len(window)/2; i-- {
		if window[i] == ' ' {
			return i, true
		}
	}
	return 0, false
}

// FirstNonEmptyLine returns the first non-blank line of raw, with
// surrounding quote characters stripped (§4.H step 5).
func FirstNonEmptyLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.Trim(line, `"'`+"`")
	}
	return ""
}
