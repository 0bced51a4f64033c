// Package fetch retrieves candidate source URLs concurrently and turns each response into a models.SourceRecord.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/myrjola/whistleblower/internal/metrics"
	"github.com/myrjola/whistleblower/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultTimeout = 5 * time.Second

	// FailedCredibility is assigned to URLs that could not be fetched or answered with a non-2xx status.
	FailedCredibility = 0.2

	maxSnippetRunes = 280
	maxBodyBytes    = 1 << 20
	userAgent       = "Mozilla/5.0 (compatible; whistleblower/1.0)"
)

const (
	outcomeOK        = "ok"
	outcomeHTTPError = "http_error"
	outcomeFailed    = "failed"
)

type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Fetcher)

// WithTransport replaces the HTTP transport. Tests use it to stub the network.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.client.Transport = rt
	}
}

// WithTimeout sets the per-URL timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// New creates a Fetcher. m may be nil.
func New(logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Fetcher {
	transport, ok := http.DefaultTransport.(*http.Transport)
	var rt http.RoundTripper = http.DefaultTransport
	if ok {
		rt = transport.Clone()
	}
	f := &Fetcher{
		// The default CheckRedirect follows up to 10 redirects.
		client:  &http.Client{Transport: rt}, //nolint:exhaustruct // defaults are fine
		timeout: DefaultTimeout,
		logger:  logger.With("source", "fetch"),
		metrics: m,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Credibility returns the static per-domain weight for a successfully fetched URL.
func Credibility(u string) float64 {
	cred := 0.3
	if strings.Contains(u, "wikipedia.org") || strings.Contains(u, "thestar.com.my") ||
		strings.Contains(u, "news.google.com") {
		cred = 0.5
	}
	if strings.Contains(u, "facebook.com") || strings.Contains(u, "tiktok.com") {
		cred = 0.25
	}
	return cred
}

// Fetch retrieves every URL concurrently and returns one record per URL in input order.
//
// Per-URL failures are absorbed into their records. An error is returned only when ctx is done by the time all
// requests have settled.
func (f *Fetcher) Fetch(ctx context.Context, urls []string) ([]models.SourceRecord, error) {
	if len(urls) == 0 {
		return []models.SourceRecord{}, nil
	}
	start := time.Now()
	records := make([]models.SourceRecord, len(urls))
	var g errgroup.Group
	g.SetLimit(len(urls))
	for i, u := range urls {
		g.Go(func() error {
			records[i] = f.fetchOne(ctx, u)
			return nil
		})
	}
	_ = g.Wait() // Every task returns nil.
	f.client.CloseIdleConnections()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "fetch batch", slog.Int("urls", len(urls)))
	}
	f.logger.LogAttrs(ctx, slog.LevelDebug, "fetched batch",
		slog.Int("urls", len(urls)), slog.Duration("duration", time.Since(start)))
	return records, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, u string) (record models.SourceRecord) {
	start := time.Now()
	outcome := outcomeFailed
	record = models.SourceRecord{URL: u, Snippet: "", CredibilityScore: FailedCredibility}
	defer func() {
		if r := recover(); r != nil {
			f.logger.LogAttrs(ctx, slog.LevelError, "panic while fetching source",
				slog.String("url", u), slog.Any("panic", r))
			outcome = outcomeFailed
			record = models.SourceRecord{URL: u, Snippet: "", CredibilityScore: FailedCredibility}
		}
		f.metrics.ObserveFetch(outcome, time.Since(start))
	}()

	snippet, status, err := f.get(ctx, u)
	switch {
	case err != nil:
		f.logger.LogAttrs(ctx, slog.LevelDebug, "source fetch failed", slog.String("url", u), errors.SlogError(err))
	case status < http.StatusOK || status >= http.StatusMultipleChoices:
		outcome = outcomeHTTPError
		f.logger.LogAttrs(ctx, slog.LevelDebug, "source returned non-success status",
			slog.String("url", u), slog.Int("status", status))
	default:
		outcome = outcomeOK
		record.Snippet = snippet
		record.CredibilityScore = Credibility(u)
		f.logger.LogAttrs(ctx, slog.LevelDebug, "source fetched",
			slog.String("url", u), slog.Int("status", status), slog.Int("snippet_len", len(snippet)))
	}
	return record
}

// get performs one bounded GET and returns the extracted title and the status code. The body of a non-2xx response
// is not parsed.
func (f *Fetcher) get(ctx context.Context, u string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "do request")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", resp.StatusCode, nil
	}

	title, err := Title(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", resp.StatusCode, errors.Wrap(err, "extract title", slog.Int("status", resp.StatusCode))
	}
	return title, resp.StatusCode, nil
}

// Title returns the text of the first <title> element with whitespace collapsed, truncated to 280 runes.
func Title(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", errors.Wrap(err, "parse html")
	}
	title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
	if runes := []rune(title); len(runes) > maxSnippetRunes {
		title = string(runes[:maxSnippetRunes])
	}
	return title, nil
}
