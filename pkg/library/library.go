// Package library composes the fetcher, caches and segmenter into the
// retrieval operations the HTTP surface needs: listings, document metadata
// and readable chapters.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/readabook/pkg/cache"
	"github.com/Sternrassler/readabook/pkg/catalog"
	"github.com/Sternrassler/readabook/pkg/fetch"
	"github.com/Sternrassler/readabook/pkg/logging"
	"github.com/Sternrassler/readabook/pkg/segment"
)

// Facade failures. Fetch failures (fetch.ErrTimeout, fetch.ErrCancelled,
// *fetch.HTTPError, fetch.ErrNetwork) pass through wrapped.
var (
	// ErrInvalidInput is returned for malformed ids before any upstream call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when the catalog has no record for an id.
	ErrNotFound = errors.New("document not found")

	// ErrNoReadableFormat is returned when a document offers no plain-text format.
	ErrNoReadableFormat = errors.New("no plain-text format available")

	// ErrNoContent is returned when a text segments into zero chapters.
	ErrNoContent = errors.New("no readable content")

	// ErrTextFetch wraps failures of the full-text download.
	ErrTextFetch = errors.New("text download failed")
)

const (
	DefaultBaseURL        = "https://gutendex.com"
	DefaultMetaTimeout    = 8 * time.Second
	DefaultListingTimeout = 15 * time.Second
	DefaultTextTimeout    = 25 * time.Second
	DefaultMaxConcurrency = 4
)

// Fetcher performs single upstream GETs.
type Fetcher interface {
	FetchKind(ctx context.Context, kind fetch.Kind, url string, timeout time.Duration) ([]byte, error)
}

// Config holds library configuration. Nil caches and segmenter are created
// with their defaults.
type Config struct {
	// BaseURL of the catalog API (REQUIRED).
	BaseURL string

	// Fetcher performs upstream calls (REQUIRED).
	Fetcher Fetcher

	Listings  *cache.RequestCache[*catalog.Listing]
	Documents *cache.RequestCache[*catalog.Document]
	Texts     *cache.BoundedCache
	Segmenter *segment.Segmenter

	MetaTimeout    time.Duration
	ListingTimeout time.Duration
	TextTimeout    time.Duration

	// MetaPolicy applies to listing and metadata calls. Text downloads are never retried.
	MetaPolicy fetch.Policy

	// MaxConcurrency bounds GetListings fan-out.
	MaxConcurrency int

	// Logger defaults to the global logger with component=library.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with default timeouts and retry policy.
func DefaultConfig(f Fetcher) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Fetcher:        f,
		MetaTimeout:    DefaultMetaTimeout,
		ListingTimeout: DefaultListingTimeout,
		TextTimeout:    DefaultTextTimeout,
		MetaPolicy:     fetch.MetadataPolicy(fetch.DefaultRetryDelay),
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// Library is the retrieval facade.
type Library struct {
	baseURL   string
	fetcher   Fetcher
	listings  *cache.RequestCache[*catalog.Listing]
	documents *cache.RequestCache[*catalog.Document]
	texts     *cache.BoundedCache
	segmenter *segment.Segmenter

	metaTimeout    time.Duration
	listingTimeout time.Duration
	textTimeout    time.Duration
	metaPolicy     fetch.Policy
	maxConcurrency int

	textFlights singleflight.Group
	logger      zerolog.Logger
}

// New creates a library.
func New(cfg Config) (*Library, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}

	logger := logging.NewLogger("library")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	l := &Library{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		fetcher:        cfg.Fetcher,
		listings:       cfg.Listings,
		documents:      cfg.Documents,
		texts:          cfg.Texts,
		segmenter:      cfg.Segmenter,
		metaTimeout:    orDefault(cfg.MetaTimeout, DefaultMetaTimeout),
		listingTimeout: orDefault(cfg.ListingTimeout, DefaultListingTimeout),
		textTimeout:    orDefault(cfg.TextTimeout, DefaultTextTimeout),
		metaPolicy:     cfg.MetaPolicy,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         logger,
	}

	if l.listings == nil {
		l.listings = cache.NewRequestCache[*catalog.Listing]("listings", cache.DefaultRequestCacheConfig())
	}
	if l.documents == nil {
		l.documents = cache.NewRequestCache[*catalog.Document]("documents", cache.DefaultRequestCacheConfig())
	}
	if l.texts == nil {
		l.texts = cache.NewBoundedCache("texts", cache.DefaultBoundedCacheConfig())
	}
	if l.segmenter == nil {
		l.segmenter = segment.Default()
	}
	if l.metaPolicy.Attempts == 0 {
		l.metaPolicy = fetch.MetadataPolicy(fetch.DefaultRetryDelay)
	}
	if l.maxConcurrency <= 0 {
		l.maxConcurrency = DefaultMaxConcurrency
	}

	return l, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// StartSweepers runs the request cache sweepers until ctx is done.
func (l *Library) StartSweepers(ctx context.Context, interval time.Duration) {
	go l.listings.StartSweeper(ctx, interval)
	go l.documents.StartSweeper(ctx, interval)
}

// GetDocument returns the metadata record of id.
func (l *Library) GetDocument(ctx context.Context, id int) (*catalog.Document, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: document id %d", ErrInvalidInput, id)
	}

	key := catalog.DocumentKey(id)
	doc, err := l.documents.Resolve(ctx, key, func(ctx context.Context) (*catalog.Document, error) {
		return loadJSON[catalog.Document](ctx, l, fetch.KindMetadata, key, l.metaTimeout)
	})
	if err != nil {
		if code, ok := fetch.StatusCode(err); ok && code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: document %d: %w", ErrNotFound, id, err)
		}
		return nil, err
	}
	return doc, nil
}

// GetRawText returns the full plain text of id, from the content cache when
// possible. The download itself is not retried.
func (l *Library) GetRawText(ctx context.Context, id int) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("%w: document id %d", ErrInvalidInput, id)
	}

	cacheKey := strconv.Itoa(id)
	if text, ok := l.texts.Get(cacheKey); ok {
		return text, nil
	}

	doc, err := l.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}

	textURL, ok := catalog.SelectTextFormat(doc.Formats)
	if !ok {
		return "", fmt.Errorf("%w: document %d", ErrNoReadableFormat, id)
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", fetch.ErrCancelled, err)
	}

	// Concurrent readers of one document share a single download.
	detached := context.WithoutCancel(ctx)
	ch := l.textFlights.DoChan(cacheKey, func() (any, error) {
		if text, ok := l.texts.Peek(cacheKey); ok {
			return text, nil
		}
		start := time.Now()
		body, err := fetch.Do(detached, fetch.NoRetryPolicy(), func(ctx context.Context) ([]byte, error) {
			return l.fetcher.FetchKind(ctx, fetch.KindText, textURL, l.textTimeout)
		})
		if err != nil {
			return nil, err
		}
		text := strings.TrimPrefix(string(body), "\ufeff")
		l.texts.Put(cacheKey, text)
		l.logger.Info().
			Int("document_id", id).
			Int("bytes", len(body)).
			Dur("duration", time.Since(start)).
			Msg("Document text downloaded")
		return text, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			l.logger.Warn().
				Err(res.Err).
				Int("document_id", id).
				Str("error_class", string(fetch.Classify(res.Err))).
				Msg("Text download failed")
			return "", fmt.Errorf("%w: document %d: %w", ErrTextFetch, id, res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", fetch.ErrCancelled, ctx.Err())
	}
}

// GetDocumentText returns the readable chapters of id. Cached raw text is
// re-segmented on every call.
func (l *Library) GetDocumentText(ctx context.Context, id int) (*segment.ParseResult, error) {
	raw, err := l.GetRawText(ctx, id)
	if err != nil {
		return nil, err
	}

	res := l.segmenter.Segment(raw)
	if res.TotalChapters == 0 {
		return nil, fmt.Errorf("%w: document %d", ErrNoContent, id)
	}

	l.logger.Debug().
		Int("document_id", id).
		Int("chapters", res.TotalChapters).
		Str("strategy", res.Strategy).
		Msg("Segmented document text")
	return res, nil
}

// loadJSON fetches key under the metadata retry policy and decodes the body.
func loadJSON[T any](ctx context.Context, l *Library, kind fetch.Kind, key cache.RequestKey, timeout time.Duration) (*T, error) {
	target := l.baseURL + key.String()
	return fetch.Do(ctx, l.metaPolicy, func(ctx context.Context) (*T, error) {
		body, err := l.fetcher.FetchKind(ctx, kind, target, timeout)
		if err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		return &v, nil
	})
}
