package chunk

import (
	"strings"

	"github.com/calyptra/lodestone/core"
)

// Unit is one indivisible piece of segmented text. Atomic units (fenced code
// blocks) are never merged with surrounding prose mid-unit.
type Unit struct {
	Text   string
	Atomic bool
}

// Section is a run of units governed by an optional heading. The splitter
// never merges units across sections, and prefixes the heading line to every
// chunk produced from the section.
type Section struct {
	Heading string
	Units   []Unit
}

// Segmenter turns document text into sections of accumulate-ready units.
// The limit is the target chunk size; segmenters that produce atomic units
// use it to pre-split units that could never fit a chunk.
type Segmenter interface {
	Segment(text string, limit int) []Section
}

// SegmenterFor selects the segmentation strategy for a document type.
// Unknown types fall back to plain paragraph segmentation.
func SegmenterFor(t core.DocType) Segmenter {
	switch t {
	case core.DocTypeMarkdown:
		return FencedCodeSegmenter{}
	case core.DocTypeReference:
		return HeadingSegmenter{}
	default:
		return ParagraphSegmenter{}
	}
}

// ParagraphSegmenter splits text into paragraph-like units delimited by
// blank lines or heading lines.
type ParagraphSegmenter struct{}

var _ Segmenter = ParagraphSegmenter{}

func (ParagraphSegmenter) Segment(text string, _ int) []Section {
	units := paragraphs(text)
	if len(units) == 0 {
		return nil
	}
	return []Section{{Units: units}}
}

// FencedCodeSegmenter segments like ParagraphSegmenter but treats fenced
// code blocks as atomic units. A block larger than the limit is split into
// multiple atomic units, each wrapped in the original fence markers.
type FencedCodeSegmenter struct{}

var _ Segmenter = FencedCodeSegmenter{}

func (FencedCodeSegmenter) Segment(text string, limit int) []Section {
	var units []Unit
	var prose []string

	flushProse := func() {
		if len(prose) > 0 {
			units = append(units, paragraphs(strings.Join(prose, "\n"))...)
			prose = prose[:0]
		}
	}

	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !isFence(line) {
			prose = append(prose, line)
			continue
		}

		// Collect the fenced block, closing fence included.
		fence := line
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			if isFence(lines[j]) {
				break
			}
			body = append(body, lines[j])
		}
		flushProse()
		units = append(units, splitFenced(fence, body, limit)...)
		i = j // skip past the closing fence (or EOF)
	}
	flushProse()

	if len(units) == 0 {
		return nil
	}
	return []Section{{Units: units}}
}

// HeadingSegmenter splits strictly at heading boundaries. Each section keeps
// its governing heading line; body text is segmented into paragraphs.
type HeadingSegmenter struct{}

var _ Segmenter = HeadingSegmenter{}

func (HeadingSegmenter) Segment(text string, _ int) []Section {
	var sections []Section
	current := Section{}
	var body []string

	flush := func() {
		units := paragraphs(strings.Join(body, "\n"))
		if len(units) > 0 || current.Heading != "" {
			current.Units = units
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if isHeading(line) {
			flush()
			current = Section{Heading: strings.TrimSpace(line)}
			continue
		}
		body = append(body, line)
	}
	flush()

	// Drop heading-only sections with no content anywhere.
	out := sections[:0]
	for _, s := range sections {
		if len(s.Units) > 0 {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// paragraphs splits text into trimmed, non-empty paragraph units.
// A paragraph ends at a blank line or just before a heading line.
func paragraphs(text string) []Unit {
	var units []Unit
	var buf []string

	flush := func() {
		p := strings.TrimSpace(strings.Join(buf, "\n"))
		if p != "" {
			units = append(units, Unit{Text: p})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case isHeading(line):
			flush()
			buf = append(buf, line)
		default:
			buf = append(buf, line)
		}
	}
	flush()
	return units
}

// splitFenced turns one fenced code block into atomic units no larger than
// the limit, re-wrapping every piece in the opening fence and a bare closing
// fence so each piece stays a valid block.
func splitFenced(fence string, body []string, limit int) []Unit {
	const closing = "```"
	overhead := len(fence) + len(closing) + 2 // newlines around the body

	assemble := func(lines []string) Unit {
		return Unit{
			Text:   fence + "\n" + strings.Join(lines, "\n") + "\n" + closing,
			Atomic: true,
		}
	}

	whole := assemble(body)
	if limit <= 0 || len(whole.Text) <= limit {
		return []Unit{whole}
	}

	var units []Unit
	var piece []string
	size := overhead
	for _, line := range body {
		if len(piece) > 0 && size+len(line)+1 > limit {
			units = append(units, assemble(piece))
			piece = piece[:0]
			size = overhead
		}
		piece = append(piece, line)
		size += len(line) + 1
	}
	if len(piece) > 0 {
		units = append(units, assemble(piece))
	}
	return units
}

func isFence(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func isHeading(line string) bool {
	trimmed := strings.TrimLeft(line, "#")
	return strings.HasPrefix(line, "#") && strings.HasPrefix(trimmed, " ")
}
