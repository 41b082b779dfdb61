package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/extract"
	"github.com/kryptonlabs/leadscraper/leads"
)

type fakeLeadCache struct {
	m map[string][]leads.Lead
}

func newFakeLeadCache() *fakeLeadCache {
	return &fakeLeadCache{m: map[string][]leads.Lead{}}
}

func (c *fakeLeadCache) GetLeads(_ context.Context, key string) ([]leads.Lead, bool) {
	ls, ok := c.m[key]
	return ls, ok
}

func (c *fakeLeadCache) SetLeads(_ context.Context, key string, ls []leads.Lead) {
	c.m[key] = ls
}

type stubPlaces struct {
	leads []leads.Lead
	err   error
	calls int
}

func (s *stubPlaces) Search(context.Context, Query) ([]leads.Lead, error) {
	s.calls++

	return s.leads, s.err
}

func newTestOrchestrator(site *fakeSite, opts ...OrchestratorOption) (*Orchestrator, *stubPool) {
	pool := &stubPool{site: site}
	catalog := testCatalog()

	processor := NewProcessor(extract.New(catalog, nil), &stubEnricher{})
	processor.sleep = noSleep

	o := NewOrchestrator(pool, catalog, processor, opts...)
	o.sleep = noSleep

	return o, pool
}

func card(name, detailURL string) *stubElement {
	return &stubElement{
		attrs:    map[string]string{"href": detailURL},
		children: map[string]*stubElement{".name": {text: name}},
	}
}

// resultsSite builds a fake site whose results page serves the given cards.
func resultsSite(query Query, cards []browser.Element, details map[string]*pageContent) *fakeSite {
	pages := map[string]*pageContent{
		query.SearchURL(): {
			visible: map[string]bool{".cards": true},
			lists:   map[string][]browser.Element{".cards": cards},
		},
	}

	for url, content := range details {
		pages[url] = content
	}

	return &fakeSite{pages: pages}
}

func TestScrapeInvalidQueryBeforeAnyBrowserWork(t *testing.T) {
	site := &fakeSite{pages: map[string]*pageContent{}}
	o, pool := newTestOrchestrator(site)

	_, err := o.Scrape(context.Background(), Query{BusinessType: "", Location: "Austin, TX", MaxResults: 10})
	require.ErrorIs(t, err, ErrInvalidQuery)

	_, err = o.Scrape(context.Background(), Query{BusinessType: "pizza", Location: "   ", MaxResults: 10})
	require.ErrorIs(t, err, ErrInvalidQuery)

	assert.Zero(t, pool.gets)
	assert.Empty(t, site.navigated)
}

func TestScrapePipelineRanksAndDeduplicates(t *testing.T) {
	query := Query{BusinessType: "restaurants", Location: "Dallas", MaxResults: 10}

	site := resultsSite(query, []browser.Element{
		card("Haywire", "d1"),
		card("Haywire Restaurant", "d2"),
		card("Blue Door Cafe", "d3"),
	}, map[string]*pageContent{
		"d1": {elements: map[string]*stubElement{".phone": {text: "(555) 111-2222"}}},
		"d2": {},
		"d3": {elements: map[string]*stubElement{
			".site":  {attrs: map[string]string{"href": "https://bluedoorcafe.example"}},
			".phone": {text: "(555) 333-4444"},
		}},
	})

	results := newFakeLeadCache()
	o, _ := newTestOrchestrator(site, WithResultCache(results))

	got, err := o.Scrape(context.Background(), query)
	require.NoError(t, err)

	// "Haywire Restaurant" collapses into "Haywire"; higher score first.
	require.Equal(t, []string{"Blue Door Cafe", "Haywire"}, names(got))
	assert.Equal(t, 7, got[0].QualityScore)
	assert.Equal(t, 4, got[1].QualityScore)

	// Write-through happened.
	cached, ok := results.GetLeads(context.Background(), query.CacheKey())
	require.True(t, ok)
	assert.Equal(t, got, cached)
}

func TestScrapeReturnsCacheHitWithoutScraping(t *testing.T) {
	query := Query{BusinessType: "pizza", Location: "Austin", MaxResults: 5}

	results := newFakeLeadCache()
	results.SetLeads(context.Background(), query.CacheKey(), []leads.Lead{{Name: "Cached Pizza Co"}})

	site := &fakeSite{pages: map[string]*pageContent{}}
	o, pool := newTestOrchestrator(site, WithResultCache(results))

	got, err := o.Scrape(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cached Pizza Co"}, names(got))
	assert.Zero(t, pool.gets)
}

func TestScrapeCacheKeyNormalization(t *testing.T) {
	a := Query{BusinessType: "Coffee Shop", Location: "Austin, TX", MaxResults: 5}
	b := Query{BusinessType: "  coffee shop ", Location: "austin, tx", MaxResults: 5}

	assert.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestScrapeNothingFoundIsEmptyNotError(t *testing.T) {
	query := Query{BusinessType: "pizza", Location: "Nowhere", MaxResults: 5}

	// The results page loads but no listing locator matches anything.
	site := &fakeSite{pages: map[string]*pageContent{
		query.SearchURL(): {},
	}}

	o, _ := newTestOrchestrator(site)

	got, err := o.Scrape(context.Background(), query)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestScrapeFallsBackToPlacesWhenShort(t *testing.T) {
	query := Query{BusinessType: "pizza", Location: "Nowhere", MaxResults: 10}

	site := &fakeSite{pages: map[string]*pageContent{
		query.SearchURL(): {},
	}}

	apiLead := *leads.New()
	apiLead.Name = "API Pizza Palace"
	apiLead.Website = "https://apipizza.example"
	apiLead.Source = leads.SourceAPIFallback
	apiLead.CalculateQuality()

	places := &stubPlaces{leads: []leads.Lead{apiLead}}

	o, _ := newTestOrchestrator(site, WithPlacesFallback(places))

	got, err := o.Scrape(context.Background(), query)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "API Pizza Palace", got[0].Name)
	assert.Equal(t, leads.SourceAPIFallback, got[0].Source)
	assert.Equal(t, 1, places.calls)
}

func TestScrapePlacesFailureStillReturnsScrapedLeads(t *testing.T) {
	query := Query{BusinessType: "pizza", Location: "Nowhere", MaxResults: 10}

	site := &fakeSite{pages: map[string]*pageContent{
		query.SearchURL(): {},
	}}

	places := &stubPlaces{err: errors.New("quota exceeded")}

	o, _ := newTestOrchestrator(site, WithPlacesFallback(places))

	got, err := o.Scrape(context.Background(), query)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScrapeTrimsToMaxResults(t *testing.T) {
	query := Query{BusinessType: "restaurants", Location: "Dallas", MaxResults: 2}

	site := resultsSite(query, []browser.Element{
		card("Alpha Diner", "d1"),
		card("Bravo Bistro", "d2"),
		card("Charlie Grill", "d3"),
	}, map[string]*pageContent{
		"d1": {}, "d2": {}, "d3": {},
	})

	o, _ := newTestOrchestrator(site)

	got, err := o.Scrape(context.Background(), query)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 2)
}
