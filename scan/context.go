package scan

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// contextChars is the number of characters kept on each side of a content
// match.
const contextChars = 20

// extractContext extracts up to n characters before and after the match from
// line, clipped to the line bounds. matchIndex is the [start, end) byte range
// of the match within line. Leading whitespace and newlines are removed.
func extractContext(line string, matchIndex []int, n int) string {
	if len(line) == 0 {
		return ""
	}

	start := matchIndex[0]
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(line[:start])
		start -= size
	}
	end := matchIndex[1]
	for i := 0; i < n && end < len(line); i++ {
		_, size := utf8.DecodeRuneInString(line[end:])
		end += size
	}

	context := strings.TrimLeftFunc(line[start:end], unicode.IsSpace)
	return strings.ReplaceAll(context, "\n", "")
}
