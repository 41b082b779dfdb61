package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kryptonlabs/leadscraper/cache"
	"github.com/kryptonlabs/leadscraper/enrich"
	"github.com/kryptonlabs/leadscraper/extract"
	"github.com/kryptonlabs/leadscraper/leads"
)

type fakeContacts struct {
	m map[string]enrich.Contact
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{m: map[string]enrich.Contact{}}
}

func (c *fakeContacts) GetContact(_ context.Context, key string) (enrich.Contact, bool) {
	contact, ok := c.m[key]
	return contact, ok
}

func (c *fakeContacts) SetContact(_ context.Context, key string, contact enrich.Contact) {
	c.m[key] = contact
}

func newTestProcessor(enricher Enricher, opts ...ProcessorOption) *Processor {
	p := NewProcessor(extract.New(testCatalog(), nil), enricher, opts...)
	p.sleep = noSleep

	return p
}

func pizzaCard() *stubElement {
	return &stubElement{
		attrs:    map[string]string{"href": "detail"},
		children: map[string]*stubElement{".name": {text: "Joe's Pizza"}},
	}
}

func pizzaDetail() *pageContent {
	return &pageContent{
		elements: map[string]*stubElement{
			".site":  {attrs: map[string]string{"href": "https://joespizza.example"}},
			".phone": {text: "(555) 123-4567"},
		},
	}
}

func TestProcessFullListing(t *testing.T) {
	site := &fakeSite{pages: map[string]*pageContent{"detail": pizzaDetail()}}
	enricher := &stubEnricher{contacts: map[string]enrich.Contact{
		"https://joespizza.example": {Email: "info@joespizza.example"},
	}}

	p := newTestProcessor(enricher)

	lead := p.Process(context.Background(), &stubContext{site: site}, Listing{
		Card:      pizzaCard(),
		DetailURL: "detail",
	})

	require.NotNil(t, lead)
	assert.Equal(t, "Joe's Pizza", lead.Name)
	assert.Equal(t, "https://joespizza.example", lead.Website)
	assert.Equal(t, "(555) 123-4567", lead.Phone)
	assert.Equal(t, "info@joespizza.example", lead.Email)
	assert.Empty(t, lead.Address)
	assert.Zero(t, lead.Rating)
	assert.Equal(t, 10, lead.QualityScore)
	assert.Equal(t, leads.SourceScraped, lead.Source)
}

func TestProcessDetailOpenFailsTwiceKeepsNameOnly(t *testing.T) {
	site := &fakeSite{pages: map[string]*pageContent{}}
	enricher := &stubEnricher{}

	p := newTestProcessor(enricher)

	lead := p.Process(context.Background(), &stubContext{site: site}, Listing{
		Card:      pizzaCard(),
		DetailURL: "detail",
	})

	require.NotNil(t, lead)
	assert.Equal(t, "Joe's Pizza", lead.Name)
	assert.Empty(t, lead.Website)
	assert.Equal(t, 2, lead.QualityScore)

	// Both attempts navigated and failed.
	assert.Equal(t, []string{"detail", "detail"}, site.navigated)
	assert.Zero(t, enricher.calls)
}

func TestProcessNameOnlyInDetailPane(t *testing.T) {
	detail := pizzaDetail()
	detail.elements[".name"] = &stubElement{text: "Joe's Pizza"}

	site := &fakeSite{pages: map[string]*pageContent{"detail": detail}}

	p := newTestProcessor(&stubEnricher{})

	lead := p.Process(context.Background(), &stubContext{site: site}, Listing{
		Card:      &stubElement{}, // card renders no name
		DetailURL: "detail",
	})

	require.NotNil(t, lead)
	assert.Equal(t, "Joe's Pizza", lead.Name)
}

func TestProcessNoNameAnywhereIsSkipped(t *testing.T) {
	site := &fakeSite{pages: map[string]*pageContent{"detail": {}}}

	p := newTestProcessor(&stubEnricher{})

	lead := p.Process(context.Background(), &stubContext{site: site}, Listing{
		Card:      &stubElement{},
		DetailURL: "detail",
	})

	assert.Nil(t, lead)
}

func TestProcessPanicBecomesSkip(t *testing.T) {
	site := &fakeSite{pages: map[string]*pageContent{"detail": pizzaDetail()}}

	p := newTestProcessor(&stubEnricher{panics: true})

	lead := p.Process(context.Background(), &stubContext{site: site}, Listing{
		Card:      pizzaCard(),
		DetailURL: "detail",
	})

	assert.Nil(t, lead)
}

func TestProcessUsesContactCache(t *testing.T) {
	site := &fakeSite{pages: map[string]*pageContent{"detail": pizzaDetail()}}
	enricher := &stubEnricher{contacts: map[string]enrich.Contact{
		"https://joespizza.example": {Email: "info@joespizza.example"},
	}}
	contacts := newFakeContacts()

	p := newTestProcessor(enricher, WithContactCache(contacts))

	listing := Listing{Card: pizzaCard(), DetailURL: "detail"}

	first := p.Process(context.Background(), &stubContext{site: site}, listing)
	second := p.Process(context.Background(), &stubContext{site: site}, listing)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "info@joespizza.example", second.Email)
	assert.Equal(t, 1, enricher.calls)

	_, cached := contacts.GetContact(context.Background(), cache.WebsiteKey("https://joespizza.example"))
	assert.True(t, cached)
}

func TestProcessEnrichmentNeverOverwrites(t *testing.T) {
	detail := pizzaDetail()
	site := &fakeSite{pages: map[string]*pageContent{"detail": detail}}

	enricher := &stubEnricher{contacts: map[string]enrich.Contact{
		"https://joespizza.example": {
			Email: "other@joespizza.example",
			Socials: map[string]string{
				leads.PlatformInstagram: "https://instagram.com/joespizza",
			},
		},
	}}

	p := newTestProcessor(enricher)

	lead := p.Process(context.Background(), &stubContext{site: site}, Listing{
		Card:      pizzaCard(),
		DetailURL: "detail",
	})

	require.NotNil(t, lead)
	// Email was empty, so enrichment fills it; socials backfill too.
	assert.Equal(t, "other@joespizza.example", lead.Email)
	assert.Equal(t, "https://instagram.com/joespizza", lead.Social(leads.PlatformInstagram))
}
