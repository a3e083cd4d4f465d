package chunker

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func TestChunk_Examples(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLength int
		expected  []string
	}{
		{
			name:      "empty text",
			text:      "",
			maxLength: 100,
			expected:  nil,
		},
		{
			name:      "shorter than window",
			text:      "  hello world \n",
			maxLength: 100,
			expected:  []string{"hello world"},
		},
		{
			name:      "break too early falls back to hard cut",
			text:      strings.Repeat("A", 50) + " " + strings.Repeat("B", 199),
			maxLength: 100,
			expected: []string{
				strings.Repeat("A", 50) + " " + strings.Repeat("B", 49),
				strings.Repeat("B", 100),
				strings.Repeat("B", 50),
			},
		},
		{
			name:      "break past offset is used",
			text:      strings.Repeat("x", 300) + " " + strings.Repeat("y", 800),
			maxLength: 1000,
			expected: []string{
				strings.Repeat("x", 300),
				strings.Repeat("y", 800),
			},
		},
		{
			name:      "newline is a break point",
			text:      strings.Repeat("a", 250) + "\n" + strings.Repeat("b", 100),
			maxLength: 300,
			expected: []string{
				strings.Repeat("a", 250),
				strings.Repeat("b", 100),
			},
		},
		{
			name:      "whitespace run yields blank chunk",
			text:      strings.Repeat("a", 10) + strings.Repeat(" ", 30) + "b",
			maxLength: 10,
			expected:  []string{strings.Repeat("a", 10), "", "", "", "b"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Chunk(tc.text, tc.maxLength))
		})
	}
}

func TestChunk_DefaultMaxLength(t *testing.T) {
	text := strings.Repeat("z", DefaultMaxLength+1)
	chunks := Chunk(text, 0)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], DefaultMaxLength)
	assert.Equal(t, "z", chunks[1])
}

func TestChunk_Properties(t *testing.T) {
	word := "lorem ipsum dolor sit amet,\nconsectetur adipiscing elit "
	texts := []string{
		strings.Repeat(word, 100),
		strings.Repeat("no-spaces-at-all", 300),
		"héllo wörld " + strings.Repeat("ünïcode ", 400),
		strings.Repeat("\n", 50) + strings.Repeat(word, 20) + strings.Repeat(" ", 700),
	}

	for _, maxLength := range []int{50, 250, 1000} {
		for _, text := range texts {
			chunks := Chunk(text, maxLength)

			assert.Equal(t, stripSpace(text), stripSpace(strings.Join(chunks, "")))
			for _, c := range chunks {
				assert.LessOrEqual(t, len([]rune(c)), maxLength)
			}
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 80)
	assert.Equal(t, Chunk(text, 300), Chunk(text, 300))
}

func TestNonBlank(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NonBlank([]string{"", "a", "  ", "\n", "b"}))
	assert.Empty(t, NonBlank(nil))
}
