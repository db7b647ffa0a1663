package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/calyptra/lodestone/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textDoc(content string) *core.RawDocument {
	return &core.RawDocument{
		ID:      "doc-1",
		URL:     "https://example.com/doc-1",
		Title:   "Test Document",
		Content: content,
		Source:  "wiki",
	}
}

func TestSplit_ContinuousTextWindows(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 1000, Overlap: 200})
	content := strings.Repeat("a", 2500)

	chunks, err := s.Split(textDoc(content), core.DocTypeText)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 1000, len(chunks[0].Text))
	assert.Equal(t, 1000, len(chunks[1].Text))
	assert.Equal(t, 900, len(chunks[2].Text))

	// Each chunk begins with the trailing overlap of the previous one.
	assert.Equal(t, chunks[0].Text[800:], chunks[1].Text[:200])
	assert.Equal(t, chunks[1].Text[800:], chunks[2].Text[:200])

	// Indices are sequential.
	for i, c := range chunks {
		assert.Equal(t, i, c.Metadata.ChunkIndex)
		assert.Equal(t, "wiki", c.Metadata.Source)
		assert.Equal(t, "doc-1", c.Metadata.DocID)
	}
}

func TestSplit_Idempotent(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 300, Overlap: 50})
	content := "First paragraph with some words.\n\nSecond paragraph, a bit longer, " +
		"carrying more words than the first.\n\n" + strings.Repeat("filler text ", 60)

	first, err := s.Split(textDoc(content), core.DocTypeText)
	require.NoError(t, err)
	second, err := s.Split(textDoc(content), core.DocTypeText)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Id, second[i].Id)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestSplit_GreedyAccumulation(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 100, Overlap: 20})
	content := "alpha paragraph one.\n\nbeta paragraph two.\n\n" +
		strings.Repeat("gamma sentence. ", 10)

	chunks, err := s.Split(textDoc(content), core.DocTypeText)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// The two short paragraphs fit one chunk together.
	assert.Contains(t, chunks[0].Text, "alpha paragraph one.")
	assert.Contains(t, chunks[0].Text, "beta paragraph two.")
}

func TestSplit_OverlapSeedsNextChunk(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 120, Overlap: 30})
	content := strings.Repeat("one two three four five six seven. ", 3) +
		"\n\n" + strings.Repeat("eight nine ten eleven twelve thirteen. ", 3)

	chunks, err := s.Split(textDoc(content), core.DocTypeText)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	seed := tail(chunks[0].Text, 30)
	assert.True(t, strings.HasPrefix(chunks[1].Text, seed),
		"chunk 2 should begin with the trailing overlap of chunk 1")
}

func TestSplit_EmptyAndInvalid(t *testing.T) {
	s := NewSplitter(DefaultConfig())

	_, err := s.Split(nil, core.DocTypeText)
	assert.ErrorIs(t, err, core.ErrInvalidDocument)

	_, err = s.Split(&core.RawDocument{Source: "wiki"}, core.DocTypeText)
	assert.ErrorIs(t, err, core.ErrEmptyContent)

	chunks, err := s.Split(textDoc("short"), core.DocTypeText)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
}

func TestSplit_HeadingStrategy(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 200, Overlap: 40})
	content := "# Intro\n\nIntro body text here.\n\n# Usage\n\nUsage body text here.\n\nMore usage notes."

	chunks, err := s.Split(textDoc(content), core.DocTypeReference)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.True(t, strings.HasPrefix(chunks[0].Text, "# Intro"))
	assert.Contains(t, chunks[0].Text, "Intro body text here.")
	assert.NotContains(t, chunks[0].Text, "Usage body")

	assert.True(t, strings.HasPrefix(chunks[1].Text, "# Usage"))
	assert.Contains(t, chunks[1].Text, "More usage notes.")
}

func TestSplit_HeadingPrefixOnEveryChunk(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 150, Overlap: 30})
	content := "# Long Section\n\n" + strings.Repeat("sentence body words here. ", 30)

	chunks, err := s.Split(textDoc(content), core.DocTypeReference)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Text, "# Long Section"),
			"every chunk from the section carries its governing heading")
	}
}

func TestSplit_FencedCodeAtomic(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 200, Overlap: 40})
	code := "```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```"
	content := "Intro paragraph before the code.\n\n" + code + "\n\nClosing paragraph after the code."

	chunks, err := s.Split(textDoc(content), core.DocTypeMarkdown)
	require.NoError(t, err)

	var withCode []string
	for _, c := range chunks {
		if strings.Contains(c.Text, "func main()") {
			withCode = append(withCode, c.Text)
		}
	}
	require.Len(t, withCode, 1, "the code block must stay in one piece")
	assert.Contains(t, withCode[0], "```go")
}

func TestSplit_OversizeFencedBlockKeepsFences(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 120, Overlap: 20})
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "    line of code with padding")
	}
	content := "```python\n" + strings.Join(lines, "\n") + "\n```"

	chunks, err := s.Split(textDoc(content), core.DocTypeMarkdown)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "oversize block must be split")

	for _, c := range chunks {
		assert.True(t, strings.HasPrefix(c.Text, "```python\n"),
			"each split piece keeps the opening fence")
		assert.True(t, strings.HasSuffix(c.Text, "\n```"),
			"each split piece keeps the closing fence")
	}
}

func TestCapChunk(t *testing.T) {
	// Under the cap: untouched.
	assert.Equal(t, "short", capChunk("short"))

	// Over the cap with a sentence boundary past 80%: cut there.
	boundary := MaxChunkChars - 100
	text := strings.Repeat("a", boundary-1) + ". " + strings.Repeat("b", 500)
	capped := capChunk(text)
	assert.Equal(t, boundary, len(capped))
	assert.True(t, strings.HasSuffix(capped, "."))

	// Over the cap with no usable boundary: hard cut at the cap.
	text = strings.Repeat("a", MaxChunkChars+500)
	assert.Equal(t, MaxChunkChars, len(capChunk(text)))
}

func TestWindowKeepsRunesWhole(t *testing.T) {
	// 3-byte runes with a window size that is not a multiple of 3, so a
	// byte-offset cut would land inside a rune.
	text := strings.Repeat("€", 400)
	pieces := window(text, 500, 100)

	require.Greater(t, len(pieces), 1)
	for i, piece := range pieces {
		assert.True(t, utf8.ValidString(piece), "piece %d is torn", i)
		assert.LessOrEqual(t, len(piece), 500)
	}
}

func TestCapChunkKeepsRunesWhole(t *testing.T) {
	// No sentence boundary anywhere, so the hard cut applies; the cap is
	// not a multiple of the 3-byte rune width.
	text := strings.Repeat("€", MaxChunkChars/3+50)
	require.Greater(t, len(text), MaxChunkChars)

	capped := capChunk(text)
	assert.LessOrEqual(t, len(capped), MaxChunkChars)
	assert.True(t, utf8.ValidString(capped))
}

func TestTailKeepsRunesWhole(t *testing.T) {
	got := tail(strings.Repeat("€", 10), 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "€", got, "only one whole rune fits in 4 bytes")
}

func TestSplit_MultibyteContentStaysValid(t *testing.T) {
	s := NewSplitter(Config{ChunkSize: 100, Overlap: 20})
	content := strings.Repeat("é", 300)

	chunks, err := s.Split(textDoc(content), core.DocTypeText)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is torn", i)
	}
}

func TestLastSentenceEnd(t *testing.T) {
	assert.Equal(t, 0, lastSentenceEnd("no terminator here"))
	assert.Equal(t, 9, lastSentenceEnd("one. two. three"))
	assert.Equal(t, 4, lastSentenceEnd("one!"))
	// A dot inside a number is not a boundary.
	assert.Equal(t, 0, lastSentenceEnd("version 1.5 beta"))
}
