package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/calyptra/lodestone/core"
)

const (
	defaultTimeout     = 30 * time.Second
	maxDocumentBytes   = 4 << 20 // 4 MiB per document
	defaultUserAgent   = "lodestone/1.0"
	markdownContentExt = ".md"
)

// WebFetcher retrieves explicitly requested URLs over HTTP. It ignores
// keywords; it exists for the "extra URLs" path of an ingestion job and as
// the base for site-specific fetchers.
type WebFetcher struct {
	source  string
	docType core.DocType
	client  *http.Client
	limiter *Limiter
	logger  *slog.Logger
}

var _ Fetcher = (*WebFetcher)(nil)

// NewWebFetcher creates a web fetcher publishing documents under the given
// source tag.
func NewWebFetcher(source string, docType core.DocType, requestsPerSecond float64) *WebFetcher {
	return &WebFetcher{
		source:  source,
		docType: docType,
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: NewLimiter(requestsPerSecond),
		logger:  slog.Default().With("component", "web-fetcher", "source", source),
	}
}

// Source returns the source tag.
func (f *WebFetcher) Source() string {
	return f.source
}

// DocType returns the configured document type.
func (f *WebFetcher) DocType() core.DocType {
	return f.docType
}

// Fetch retrieves each extra URL, skipping the ones that fail. It returns
// an error only when nothing at all was retrievable and at least one URL
// was requested.
func (f *WebFetcher) Fetch(ctx context.Context, keywords, extraURLs []string) ([]core.RawDocument, error) {
	var docs []core.RawDocument
	var lastErr error

	for _, url := range extraURLs {
		if err := f.limiter.Wait(ctx); err != nil {
			return docs, err
		}

		doc, err := f.fetchOne(ctx, url)
		if err != nil {
			f.logger.Warn("skipping unreachable url", "url", url, "err", err)
			lastErr = err
			continue
		}
		docs = append(docs, *doc)
	}

	if len(docs) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, lastErr)
	}
	return docs, nil
}

func (f *WebFetcher) fetchOne(ctx context.Context, url string) (*core.RawDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, err
	}

	content := string(body)
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty document")
	}

	return &core.RawDocument{
		ID:        core.IDFromContent(f.source + "\x1f" + url).String(),
		URL:       url,
		Title:     titleFromURL(url),
		Content:   content,
		Source:    f.source,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// titleFromURL derives a readable fallback title from the URL path.
func titleFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		title := trimmed[i+1:]
		title = strings.TrimSuffix(title, markdownContentExt)
		title = strings.TrimSuffix(title, ".html")
		return strings.ReplaceAll(title, "-", " ")
	}
	return url
}
