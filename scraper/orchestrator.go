// Package scraper drives the end-to-end pipeline for one query: discover
// listings on the results page, fan out per-listing processing under a
// concurrency cap, suppress near-duplicates, rank by quality score, and read
// and write the result cache.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/cache"
	"github.com/kryptonlabs/leadscraper/leads"
	"github.com/kryptonlabs/leadscraper/selectors"
)

const (
	DefaultMaxResults  = 20
	defaultMaxInFlight = 4

	listingWaitTimeout = 10 * time.Second
	scrollRounds       = 6
	scrollPixels       = 1500
	scrollSettle       = 400 * time.Millisecond

	// resultsFeed is the scroll container on the results page.
	resultsFeed = `[role="feed"]`
)

// Query is one scrape request.
type Query struct {
	BusinessType string
	Location     string
	MaxResults   int
}

func (q Query) normalized() Query {
	q.BusinessType = strings.TrimSpace(q.BusinessType)
	q.Location = strings.TrimSpace(q.Location)

	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxResults
	}

	return q
}

func (q Query) validate() error {
	if q.BusinessType == "" {
		return fmt.Errorf("%w: empty business type", ErrInvalidQuery)
	}

	if q.Location == "" {
		return fmt.Errorf("%w: empty location", ErrInvalidQuery)
	}

	return nil
}

// SearchURL is the results page for this query.
func (q Query) SearchURL() string {
	return "https://www.google.com/maps/search/" + url.PathEscape(q.BusinessType+" "+q.Location)
}

// CacheKey is stable across whitespace and casing variations of the query.
func (q Query) CacheKey() string {
	return cache.QueryKey(q.BusinessType, q.Location, q.MaxResults)
}

// ContextPool hands out pooled browsing contexts.
type ContextPool interface {
	Get(ctx context.Context) (browser.Context, error)
	Put(bctx browser.Context)
}

// LeadCache is the slice of the result cache the orchestrator needs.
type LeadCache interface {
	GetLeads(ctx context.Context, key string) ([]leads.Lead, bool)
	SetLeads(ctx context.Context, key string, ls []leads.Lead)
}

// PlacesSearcher is the structured-data fallback provider.
type PlacesSearcher interface {
	Search(ctx context.Context, query Query) ([]leads.Lead, error)
}

// Orchestrator coordinates one query end to end.
type Orchestrator struct {
	pool      ContextPool
	catalog   *selectors.Catalog
	processor *Processor
	results   LeadCache
	places    PlacesSearcher
	logger    *slog.Logger

	maxInFlight int
	waitTimeout time.Duration
	sleep       func(context.Context, time.Duration) error
}

type OrchestratorOption func(*Orchestrator)

func WithResultCache(results LeadCache) OrchestratorOption {
	return func(o *Orchestrator) { o.results = results }
}

func WithPlacesFallback(places PlacesSearcher) OrchestratorOption {
	return func(o *Orchestrator) { o.places = places }
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMaxInFlight caps how many listings are processed at once. This bounds
// browser pressure and is independent of the website-fetch rate limiter.
func WithMaxInFlight(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxInFlight = n
		}
	}
}

func WithListingWaitTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.waitTimeout = d }
}

func NewOrchestrator(pool ContextPool, catalog *selectors.Catalog, processor *Processor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		pool:        pool,
		catalog:     catalog,
		processor:   processor,
		logger:      slog.Default(),
		maxInFlight: defaultMaxInFlight,
		waitTimeout: listingWaitTimeout,
		sleep:       ctxSleep,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Scrape runs one query and returns leads sorted by quality score, best
// first. Finding nothing yields an empty list, not an error; only an
// infrastructure fault surfaces as one.
func (o *Orchestrator) Scrape(ctx context.Context, query Query) ([]leads.Lead, error) {
	query = query.normalized()
	if err := query.validate(); err != nil {
		return nil, err
	}

	key := query.CacheKey()

	if o.results != nil {
		if hit, ok := o.results.GetLeads(ctx, key); ok {
			o.logger.Info("cache hit", "business_type", query.BusinessType, "location", query.Location)

			return hit, nil
		}
	}

	found, err := o.scrapeListings(ctx, query)

	switch {
	case errors.Is(err, ErrListingAcquisitionFailed):
		o.logger.Info("no listings found",
			"business_type", query.BusinessType, "location", query.Location)

		found = nil
	case err != nil:
		return nil, err
	}

	if o.places != nil && len(found) < query.MaxResults/2 {
		extra, err := o.places.Search(ctx, query)
		if err != nil {
			o.logger.Warn("places fallback failed", "err", err)
		} else {
			o.logger.Info("places fallback used", "extra", len(extra))

			found = append(found, extra...)
		}
	}

	found = Dedupe(found)

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].QualityScore > found[j].QualityScore
	})

	if len(found) > query.MaxResults {
		found = found[:query.MaxResults]
	}

	if found == nil {
		found = []leads.Lead{}
	}

	if o.results != nil {
		o.results.SetLeads(ctx, key, found)
	}

	return found, nil
}

func (o *Orchestrator) scrapeListings(ctx context.Context, query Query) ([]leads.Lead, error) {
	bctx, err := o.pool.Get(ctx)
	if err != nil {
		return nil, err
	}
	defer o.pool.Put(bctx)

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = page.Close() }()

	if err := page.Navigate(ctx, query.SearchURL()); err != nil {
		if errors.Is(err, browser.ErrContextInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrListingAcquisitionFailed, err)
		}

		return nil, err
	}

	listings, err := o.collectListings(ctx, page, query.MaxResults)
	if err != nil {
		return nil, err
	}

	o.logger.Info("listings discovered", "count", len(listings),
		"business_type", query.BusinessType, "location", query.Location)

	return o.processAll(ctx, listings), nil
}

// collectListings finds the listing collection by trying the catalog's
// collection locators in priority order, scrolling the feed to load more
// until the target count is reached or scrolling stops helping.
func (o *Orchestrator) collectListings(ctx context.Context, page browser.Page, max int) ([]Listing, error) {
	candidates, err := o.catalog.Candidates(selectors.FieldBusinessListing)
	if err != nil {
		return nil, err
	}

	for _, locator := range candidates {
		start := time.Now()

		if err := page.WaitVisible(ctx, locator, o.waitTimeout); err != nil {
			o.catalog.RecordOutcome(selectors.FieldBusinessListing, locator, false, time.Since(start))

			if errors.Is(err, browser.ErrContextInvalid) {
				return nil, fmt.Errorf("%w: %v", ErrListingAcquisitionFailed, err)
			}

			continue
		}

		elements, err := o.scrollAndCollect(ctx, page, locator, max)
		if err != nil || len(elements) == 0 {
			o.catalog.RecordOutcome(selectors.FieldBusinessListing, locator, false, time.Since(start))

			continue
		}

		o.catalog.RecordOutcome(selectors.FieldBusinessListing, locator, true, time.Since(start))

		return o.toListings(ctx, elements, max), nil
	}

	return nil, ErrListingAcquisitionFailed
}

func (o *Orchestrator) scrollAndCollect(ctx context.Context, page browser.Page, locator string, max int) ([]browser.Element, error) {
	var elements []browser.Element

	for round := 0; round < scrollRounds; round++ {
		found, err := page.QueryAll(ctx, locator)
		if err != nil {
			return nil, err
		}

		if len(found) >= max || (round > 0 && len(found) == len(elements)) {
			return found, nil
		}

		elements = found

		if err := page.ScrollBy(ctx, resultsFeed, scrollPixels); err != nil {
			return elements, nil
		}

		if err := o.sleep(ctx, scrollSettle); err != nil {
			return nil, err
		}
	}

	return elements, nil
}

// toListings pairs each card with its detail URL. Cards without a link are
// kept anyway; the processor can still extract a name from the card itself.
func (o *Orchestrator) toListings(ctx context.Context, elements []browser.Element, max int) []Listing {
	if len(elements) > max {
		elements = elements[:max]
	}

	listings := make([]Listing, 0, len(elements))

	for i, el := range elements {
		listings = append(listings, Listing{
			Index:     i,
			Card:      el,
			DetailURL: detailURL(ctx, el),
		})
	}

	return listings
}

func detailURL(ctx context.Context, el browser.Element) string {
	if href, err := el.Attr(ctx, "href"); err == nil && href != "" {
		return href
	}

	anchor, err := el.Query(ctx, "a[href]")
	if err != nil || anchor == nil {
		return ""
	}

	href, err := anchor.Attr(ctx, "href")
	if err != nil {
		return ""
	}

	return href
}

// processAll fans listings out to the processor with at most maxInFlight in
// flight. Output preserves discovery order; ranking happens later.
func (o *Orchestrator) processAll(ctx context.Context, listings []Listing) []leads.Lead {
	slots := make([]*leads.Lead, len(listings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxInFlight)

	for i, listing := range listings {
		g.Go(func() error {
			bctx, err := o.pool.Get(gctx)
			if err != nil {
				return nil
			}
			defer o.pool.Put(bctx)

			slots[i] = o.processor.Process(gctx, bctx, listing)

			return nil
		})
	}

	_ = g.Wait()

	ans := make([]leads.Lead, 0, len(listings))

	for _, lead := range slots {
		if lead != nil {
			ans = append(ans, *lead)
		}
	}

	return ans
}
