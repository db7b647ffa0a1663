package retrieval

import (
	"strings"
	"unicode/utf8"

	"github.com/calyptra/lodestone/core"
)

// DefaultContextLength bounds assembled context blocks.
const DefaultContextLength = 8000

const excerptSeparator = "\n\n---\n\n"

// BuildContext renders merged results into one bounded text block for
// prompt construction. Each excerpt is attributed to its source, title and
// url; the last included excerpt is truncated if it would exceed maxLen.
func BuildContext(results []*core.SearchResult, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultContextLength
	}

	var b strings.Builder
	for _, res := range results {
		block := formatExcerpt(res)
		if b.Len() > 0 {
			block = excerptSeparator + block
		}

		remaining := maxLen - b.Len()
		if remaining <= 0 {
			break
		}
		if len(block) > remaining {
			block = truncateRunes(block, remaining)
			b.WriteString(block)
			break
		}
		b.WriteString(block)
	}
	return b.String()
}

// formatExcerpt renders one result with its attribution line.
func formatExcerpt(res *core.SearchResult) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(res.Source)
	if title := res.Metadata["title"]; title != "" {
		b.WriteString(" | ")
		b.WriteString(title)
	}
	if url := res.Metadata["url"]; url != "" {
		b.WriteString(" | ")
		b.WriteString(url)
	}
	b.WriteString("]\n")
	b.WriteString(res.Text)
	return b.String()
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
