package chunk

import (
	"unicode/utf8"

	"github.com/calyptra/lodestone/core"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultOverlap is how many trailing characters of a finalized chunk
	// seed the next one.
	DefaultOverlap = 200

	// MaxChunkChars is the hard safety cap on chunk text, independent of the
	// configured chunk size. It protects downstream embedding context limits.
	MaxChunkChars = 8000

	// capCutRatio is how far into the cap the truncation starts looking for
	// a sentence boundary to cut at.
	capCutRatio = 0.8
)

// Config holds chunking parameters.
type Config struct {
	ChunkSize int
	Overlap   int
}

// DefaultConfig returns the default chunking parameters.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

// Splitter produces ordered chunks from raw documents. The segmentation
// strategy is selected per document type; accumulation, overlap seeding and
// the hard cap are shared across strategies.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter, falling back to defaults for
// non-positive or inconsistent parameters.
func NewSplitter(cfg Config) *Splitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = DefaultOverlap
		if cfg.Overlap >= cfg.ChunkSize {
			cfg.Overlap = cfg.ChunkSize / 5
		}
	}
	return &Splitter{chunkSize: cfg.ChunkSize, overlap: cfg.Overlap}
}

// Split chunks one document using the segmentation strategy for the given
// document type. Chunk IDs are deterministic in (doc, index, text), so
// splitting unchanged input reproduces identical chunks.
func (s *Splitter) Split(doc *core.RawDocument, docType core.DocType) ([]core.Chunk, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	texts := s.split(SegmenterFor(docType), doc.Content)

	docID := doc.ID
	if docID == "" {
		docID = core.IDFromContent(doc.Source + "\x1f" + doc.URL + "\x1f" + doc.Content).String()
	}

	chunks := make([]core.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, core.Chunk{
			Id:   core.ChunkID(docID, i, text),
			Text: text,
			Metadata: core.ChunkMeta{
				Source:     doc.Source,
				URL:        doc.URL,
				Title:      doc.Title,
				DocID:      docID,
				ChunkIndex: i,
			},
		})
	}
	return chunks, nil
}

// split runs greedy accumulation over the segmented sections.
func (s *Splitter) split(seg Segmenter, content string) []string {
	var out []string
	for _, section := range seg.Segment(content, s.chunkSize) {
		out = append(out, s.splitSection(section)...)
	}
	return out
}

func (s *Splitter) splitSection(section Section) []string {
	var out []string
	buf := ""           // carries the overlap seed between chunks
	buffered := 0       // units accumulated since the last finalize
	endsAtomic := false // buffer currently ends with a code block

	emit := func(body string) {
		text := body
		if section.Heading != "" {
			text = section.Heading + "\n\n" + body
		}
		out = append(out, capChunk(text))
		// Code blocks do not seed overlap: a fence tail glued onto the next
		// chunk would break fence integrity.
		if endsAtomic {
			buf = ""
		} else {
			buf = tail(body, s.overlap)
		}
		buffered = 0
		endsAtomic = false
	}

	for _, unit := range section.Units {
		// A single prose unit that can never fit is windowed with overlap
		// instead of becoming one oversized chunk. Atomic units were already
		// pre-split by the segmenter; whatever remains goes out as is.
		if len(unit.Text) > s.chunkSize && !unit.Atomic {
			if buffered > 0 {
				emit(buf)
			}
			buf = ""
			for _, w := range window(unit.Text, s.chunkSize, s.overlap) {
				endsAtomic = false
				emit(w)
			}
			continue
		}

		projected := len(unit.Text)
		if buf != "" {
			projected += len(buf) + 2
		}
		if projected > s.chunkSize && buffered > 0 {
			emit(buf)
		}

		if buf == "" {
			buf = unit.Text
		} else {
			buf += "\n\n" + unit.Text
		}
		buffered++
		endsAtomic = unit.Atomic
	}

	if buffered > 0 {
		emit(buf)
	}
	return out
}

// window slices continuous text into size-length pieces advancing by
// size-overlap, so each piece begins with the tail of the previous one.
// Cuts land on rune boundaries so no piece carries a torn rune.
func window(text string, size, overlap int) []string {
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var out []string
	pos := 0
	for {
		if pos+size >= len(text) {
			return append(out, text[pos:])
		}

		end := runeStart(text, pos+size)
		if end <= pos {
			// Degenerate size smaller than one rune: byte cut.
			end = pos + size
		}
		out = append(out, text[pos:end])

		next := runeStart(text, pos+step)
		if next <= pos {
			next = pos + step
		}
		pos = next
	}
}

// capChunk enforces the hard safety cap, preferring to cut at the last
// sentence boundary past capCutRatio of the limit.
func capChunk(text string) string {
	if len(text) <= MaxChunkChars {
		return text
	}
	limit := runeStart(text, MaxChunkChars)
	floor := int(float64(MaxChunkChars) * capCutRatio)
	if cut := lastSentenceEnd(text[:limit]); cut > floor {
		return text[:cut]
	}
	return text[:limit]
}

// lastSentenceEnd returns the position just past the final sentence
// terminator in text, or 0 if none is found.
func lastSentenceEnd(text string) int {
	for i := len(text) - 1; i >= 0; i-- {
		switch text[i] {
		case '.', '!', '?':
			// Terminator at end of input or followed by whitespace.
			if i == len(text)-1 || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t' {
				return i + 1
			}
		}
	}
	return 0
}

// tail returns at most the last n bytes of text, starting on a rune
// boundary.
func tail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := len(text) - n
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return text[cut:]
}

// runeStart backs pos up to the nearest rune boundary in text.
func runeStart(text string, pos int) int {
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}
