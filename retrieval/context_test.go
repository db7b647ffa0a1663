package retrieval

import (
	"strings"
	"testing"

	"github.com/calyptra/lodestone/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildContextAttribution(t *testing.T) {
	results := []*core.SearchResult{
		{
			Source: "docs",
			Text:   "First excerpt.",
			Metadata: map[string]string{
				"title": "Guide",
				"url":   "https://example.com/guide",
			},
		},
		{
			Source: "wiki",
			Text:   "Second excerpt.",
		},
	}

	block := BuildContext(results, 1000)

	assert.Contains(t, block, "[docs | Guide | https://example.com/guide]")
	assert.Contains(t, block, "First excerpt.")
	assert.Contains(t, block, "[wiki]")
	assert.Contains(t, block, "Second excerpt.")
	assert.Equal(t, 1, strings.Count(block, "---"), "excerpts joined by one separator")
}

func TestBuildContextTruncatesLastExcerpt(t *testing.T) {
	results := []*core.SearchResult{
		{Source: "docs", Text: strings.Repeat("a", 100)},
		{Source: "docs", Text: strings.Repeat("b", 100)},
	}

	block := BuildContext(results, 160)
	require.LessOrEqual(t, len(block), 160)
	assert.Contains(t, block, "a", "first excerpt included")
	assert.Contains(t, block, "b", "second excerpt truncated, not dropped")
}

func TestBuildContextEmpty(t *testing.T) {
	assert.Empty(t, BuildContext(nil, 100))
}

func TestTruncateRunesKeepsBoundary(t *testing.T) {
	s := "héllo wörld"
	cut := truncateRunes(s, 2)
	assert.LessOrEqual(t, len(cut), 2)
	assert.True(t, strings.HasPrefix(s, cut))
}
