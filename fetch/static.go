package fetch

import (
	"context"
	"strings"

	"github.com/calyptra/lodestone/core"
)

// StaticFetcher serves a fixed document set, optionally filtered by
// keywords. Used by tests and local corpora.
type StaticFetcher struct {
	source  string
	docType core.DocType
	docs    []core.RawDocument

	// Err, when set, is returned by Fetch. Lets tests exercise the
	// per-source failure path.
	Err error
}

var _ Fetcher = (*StaticFetcher)(nil)

// NewStaticFetcher creates a fetcher serving the given documents under one
// source tag.
func NewStaticFetcher(source string, docType core.DocType, docs []core.RawDocument) *StaticFetcher {
	return &StaticFetcher{source: source, docType: docType, docs: docs}
}

// Source returns the source tag.
func (f *StaticFetcher) Source() string {
	return f.source
}

// DocType returns the configured document type.
func (f *StaticFetcher) DocType() core.DocType {
	return f.docType
}

// Fetch returns documents matching any keyword; with no keywords, the
// whole set. Extra URLs select documents by exact URL match.
func (f *StaticFetcher) Fetch(ctx context.Context, keywords, extraURLs []string) ([]core.RawDocument, error) {
	if f.Err != nil {
		return nil, f.Err
	}

	var docs []core.RawDocument
	for _, doc := range f.docs {
		if matchesKeywords(&doc, keywords) || matchesURL(&doc, extraURLs) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func matchesKeywords(doc *core.RawDocument, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(doc.Title + " " + doc.Content)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func matchesURL(doc *core.RawDocument, urls []string) bool {
	for _, url := range urls {
		if doc.URL == url {
			return true
		}
	}
	return false
}
