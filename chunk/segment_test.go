package chunk

import (
	"testing"

	"github.com/calyptra/lodestone/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmenterFor(t *testing.T) {
	assert.IsType(t, ParagraphSegmenter{}, SegmenterFor(core.DocTypeText))
	assert.IsType(t, FencedCodeSegmenter{}, SegmenterFor(core.DocTypeMarkdown))
	assert.IsType(t, HeadingSegmenter{}, SegmenterFor(core.DocTypeReference))
	assert.IsType(t, ParagraphSegmenter{}, SegmenterFor(core.DocType(0)))
}

func TestParagraphSegmenter(t *testing.T) {
	text := "first paragraph\nstill first\n\nsecond paragraph\n\n\n\nthird"

	sections := ParagraphSegmenter{}.Segment(text, 1000)
	require.Len(t, sections, 1)
	units := sections[0].Units
	require.Len(t, units, 3)
	assert.Equal(t, "first paragraph\nstill first", units[0].Text)
	assert.Equal(t, "second paragraph", units[1].Text)
	assert.Equal(t, "third", units[2].Text)
}

func TestParagraphSegmenter_HeadingStartsUnit(t *testing.T) {
	text := "intro line\n# Heading\nbody under heading"

	sections := ParagraphSegmenter{}.Segment(text, 1000)
	require.Len(t, sections, 1)
	units := sections[0].Units
	require.Len(t, units, 2)
	assert.Equal(t, "intro line", units[0].Text)
	assert.Equal(t, "# Heading\nbody under heading", units[1].Text)
}

func TestParagraphSegmenter_Empty(t *testing.T) {
	assert.Nil(t, ParagraphSegmenter{}.Segment("", 1000))
	assert.Nil(t, ParagraphSegmenter{}.Segment("\n\n   \n", 1000))
}

func TestFencedCodeSegmenter(t *testing.T) {
	text := "prose before\n\n```go\ncode line\n```\n\nprose after"

	sections := FencedCodeSegmenter{}.Segment(text, 1000)
	require.Len(t, sections, 1)
	units := sections[0].Units
	require.Len(t, units, 3)

	assert.Equal(t, "prose before", units[0].Text)
	assert.False(t, units[0].Atomic)

	assert.Equal(t, "```go\ncode line\n```", units[1].Text)
	assert.True(t, units[1].Atomic)

	assert.Equal(t, "prose after", units[2].Text)
	assert.False(t, units[2].Atomic)
}

func TestFencedCodeSegmenter_UnclosedFence(t *testing.T) {
	text := "prose\n\n```\ndangling code"

	sections := FencedCodeSegmenter{}.Segment(text, 1000)
	require.Len(t, sections, 1)
	units := sections[0].Units
	require.Len(t, units, 2)
	assert.True(t, units[1].Atomic)
	assert.Contains(t, units[1].Text, "dangling code")
}

func TestHeadingSegmenter(t *testing.T) {
	text := "preamble text\n\n# One\nbody one\n\n## Two\nbody two a\n\nbody two b"

	sections := HeadingSegmenter{}.Segment(text, 1000)
	require.Len(t, sections, 3)

	assert.Equal(t, "", sections[0].Heading)
	require.Len(t, sections[0].Units, 1)
	assert.Equal(t, "preamble text", sections[0].Units[0].Text)

	assert.Equal(t, "# One", sections[1].Heading)
	require.Len(t, sections[1].Units, 1)

	assert.Equal(t, "## Two", sections[2].Heading)
	require.Len(t, sections[2].Units, 2)
}

func TestSplitFenced_Oversize(t *testing.T) {
	body := []string{"aaaa", "bbbb", "cccc", "dddd"}
	units := splitFenced("```go", body, 20)
	require.Greater(t, len(units), 1)
	for _, u := range units {
		assert.True(t, u.Atomic)
		assert.Contains(t, u.Text, "```go\n")
		assert.Contains(t, u.Text, "\n```")
	}
}

func TestIsHeading(t *testing.T) {
	assert.True(t, isHeading("# Title"))
	assert.True(t, isHeading("### Deep"))
	assert.False(t, isHeading("#hashtag"))
	assert.False(t, isHeading("plain line"))
	assert.False(t, isHeading("  # indented"))
}
