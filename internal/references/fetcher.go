// Package references downloads external reference documents (papers, specs,
// blog posts) and extracts their text for the review prompt.
package references

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/thomas-vilte/leanreview/internal/cache"
	"github.com/thomas-vilte/leanreview/internal/errors"
	"github.com/thomas-vilte/leanreview/internal/logger"
	"github.com/thomas-vilte/leanreview/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	DefaultConcurrency = 4
	DefaultMaxBytes    = 50 << 20

	memoSize = 128
)

type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBytes    int64
	concurrency int
	limiter     *rate.Limiter
	disk        *cache.Cache

	memo  *lru.Cache[string, string]
	group singleflight.Group
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative means
// unlimited.
func WithRateLimit(perSecond float64) Option {
	return func(f *Fetcher) {
		if perSecond <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithDiskCache makes extracted text survive across runs. A nil cache is
// ignored.
func WithDiskCache(c *cache.Cache) Option {
	return func(f *Fetcher) { f.disk = c }
}

func NewFetcher(opts ...Option) *Fetcher {
	memo, _ := lru.New[string, string](memoSize)
	f := &Fetcher{
		client:      &http.Client{Timeout: DefaultTimeout},
		userAgent:   DefaultUserAgent,
		maxBytes:    DefaultMaxBytes,
		concurrency: DefaultConcurrency,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		memo:        memo,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the extracted text of the document at rawURL. Successful
// results are memoised, so repeated calls return identical text without
// touching the network. Concurrent calls for the same URL share one request.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if text, ok := f.memo.Get(rawURL); ok {
		return text, nil
	}

	v, err, shared := f.group.Do(rawURL, func() (interface{}, error) {
		if text, ok := f.memo.Get(rawURL); ok {
			return text, nil
		}

		if text, ok := f.fromDisk(ctx, rawURL); ok {
			f.memo.Add(rawURL, text)
			return text, nil
		}

		text, err := f.fetch(ctx, rawURL)
		if err != nil {
			return "", err
		}

		f.memo.Add(rawURL, text)
		f.toDisk(ctx, rawURL, text)
		return text, nil
	})
	if shared {
		logger.Debug(ctx, "reference fetch shared with concurrent caller", "url", rawURL)
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// FetchAll fetches every URL concurrently. The result has one entry per
// input URL, in input order; failures are recorded on the entry and never
// abort the other fetches.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []models.Reference {
	results := make([]models.Reference, len(urls))

	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			start := time.Now()
			text, err := f.Fetch(ctx, u)
			results[i] = models.Reference{URL: u, Text: text, Err: err}

			if err != nil {
				logger.Warn(ctx, "reference unavailable", "url", u, "error", err)
				return nil
			}
			logger.Info(ctx, "reference fetched",
				"url", u,
				"bytes", len(text),
				"duration_ms", time.Since(start).Milliseconds())
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", errors.ErrReferenceUnreachable.
			WithError(fmt.Errorf("invalid URL %q", rawURL)).
			WithContext("url", rawURL)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return "", errors.ErrReferenceUnreachable.WithError(err).WithContext("url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.ErrReferenceUnreachable.WithError(err).WithContext("url", rawURL)
	}
	req.Header.Set("User-Agent", f.userAgent)

	logger.Debug(ctx, "fetching reference", "url", rawURL)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.ErrReferenceUnreachable.WithError(err).WithContext("url", rawURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.ErrReferenceUnreachable.
			WithError(fmt.Errorf("HTTP %d", resp.StatusCode)).
			WithContext("url", rawURL).
			WithContext("status", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", errors.ErrReferenceUnreachable.WithError(err).WithContext("url", rawURL)
	}
	if int64(len(body)) > f.maxBytes {
		return "", errors.ErrReferenceParse.
			WithError(fmt.Errorf("document larger than %d bytes", f.maxBytes)).
			WithContext("url", rawURL)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = mediaType(http.DetectContentType(body))
	}

	var text string
	switch {
	case contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf"):
		text, err = extractPDF(body)
	case contentType == "text/html" || contentType == "application/xhtml+xml":
		text, err = extractHTML(body)
	case strings.HasPrefix(contentType, "text/"):
		text = string(body)
	default:
		return "", errors.ErrUnsupportedContentType.
			WithContext("url", rawURL).
			WithContext("content_type", contentType)
	}
	if err != nil {
		return "", errors.ErrReferenceParse.WithError(err).WithContext("url", rawURL)
	}

	return text, nil
}

func (f *Fetcher) fromDisk(ctx context.Context, rawURL string) (string, bool) {
	if f.disk == nil {
		return "", false
	}
	text, found, err := f.disk.GetString(rawURL)
	if err != nil {
		logger.Debug(ctx, "reference cache read failed", "url", rawURL, "error", err)
		return "", false
	}
	if found {
		logger.Debug(ctx, "reference served from cache", "url", rawURL)
	}
	return text, found
}

func (f *Fetcher) toDisk(ctx context.Context, rawURL, text string) {
	if f.disk == nil {
		return
	}
	if err := f.disk.SetString(rawURL, text); err != nil {
		logger.Debug(ctx, "reference cache write failed", "url", rawURL, "error", err)
	}
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mt
}

// ParseList splits a comma-separated list, trimming entries and dropping
// empty ones and duplicates while keeping the first-seen order.
func ParseList(csv string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, item := range strings.Split(csv, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
