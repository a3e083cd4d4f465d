// Package chunker splits extracted document text into bounded segments for
// embedding.
package chunker

import "strings"

const (
	// DefaultMaxLength is the window size used when none is given.
	DefaultMaxLength = 1000

	// minBreakOffset is how far into a window a newline or space must sit
	// before it is preferred over the hard window boundary.
	minBreakOffset = 200
)

// Chunk splits text into windows of at most maxLength characters. A window
// that is not the last one ends at its last newline or space when that break
// lies more than minBreakOffset characters into the window. Segments are
// trimmed and may be empty; callers drop blank ones.
func Chunk(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); {
		end := start + maxLength
		if end < len(runes) {
			if bp := lastBreak(runes, start, end); bp > start+minBreakOffset {
				end = bp
			}
		} else {
			end = len(runes)
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
		start = end
	}
	return chunks
}

// NonBlank filters out segments that are empty after trimming.
func NonBlank(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

// lastBreak returns the index of the last '\n' or ' ' in runes[start:end+1],
// or -1.
func lastBreak(runes []rune, start, end int) int {
	for i := end; i >= start; i-- {
		if runes[i] == '\n' || runes[i] == ' ' {
			return i
		}
	}
	return -1
}
