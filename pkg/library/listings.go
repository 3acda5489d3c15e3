package library

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/readabook/pkg/catalog"
	"github.com/Sternrassler/readabook/pkg/fetch"
)

// ListingResult is the outcome of one query in a GetListings batch.
type ListingResult struct {
	Query   catalog.Query
	Listing *catalog.Listing
	Err     error
}

// GetListing returns one page of the catalog.
func (l *Library) GetListing(ctx context.Context, q catalog.Query) (*catalog.Listing, error) {
	key := q.Key()
	return l.listings.Resolve(ctx, key, func(ctx context.Context) (*catalog.Listing, error) {
		return loadJSON[catalog.Listing](ctx, l, fetch.KindListing, key, l.listingTimeout)
	})
}

// PeekListing returns a cached listing without touching the network.
func (l *Library) PeekListing(q catalog.Query) (*catalog.Listing, bool) {
	return l.listings.Get(q.Key())
}

// SeedListing stores a listing obtained elsewhere.
func (l *Library) SeedListing(q catalog.Query, listing *catalog.Listing) {
	l.listings.Put(q.Key(), listing)
}

// PrefetchListing warms the cache for q in the background.
func (l *Library) PrefetchListing(q catalog.Query) {
	key := q.Key()
	l.listings.Prefetch(key, func(ctx context.Context) (*catalog.Listing, error) {
		return loadJSON[catalog.Listing](ctx, l, fetch.KindListing, key, l.listingTimeout)
	})
}

// GetListings resolves several queries in parallel. Results are returned in
// request order; a failed query does not affect the others.
func (l *Library) GetListings(ctx context.Context, queries []catalog.Query) []ListingResult {
	start := time.Now()
	results := make([]ListingResult, len(queries))

	var g errgroup.Group
	g.SetLimit(l.maxConcurrency)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			listing, err := l.GetListing(ctx, q)
			results[i] = ListingResult{Query: q, Listing: listing, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			l.logger.Warn().
				Err(r.Err).
				Str("key", r.Query.Key().String()).
				Str("error_class", string(fetch.Classify(r.Err))).
				Msg("Listing fetch failed")
		}
	}

	l.logger.Debug().
		Int("queries", len(queries)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch listing fetch complete")

	return results
}

// GetPopular returns up to count of the most downloaded documents.
func (l *Library) GetPopular(ctx context.Context, count int) ([]catalog.Document, error) {
	listing, err := l.GetListing(ctx, catalog.Query{Sort: catalog.SortPopular})
	if err != nil {
		return nil, err
	}
	results := listing.Results
	if count >= 0 && count < len(results) {
		results = results[:count]
	}
	return results, nil
}

// GetRecent returns the records of ids in a single upstream call. An empty
// id list makes no call.
func (l *Library) GetRecent(ctx context.Context, ids []int) ([]catalog.Document, error) {
	if len(ids) == 0 {
		return []catalog.Document{}, nil
	}
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: document id %d", ErrInvalidInput, id)
		}
	}

	listing, err := l.GetListing(ctx, catalog.Query{IDs: ids})
	if err != nil {
		return nil, err
	}
	if listing.Results == nil {
		return []catalog.Document{}, nil
	}
	return listing.Results, nil
}
