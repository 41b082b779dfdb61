package scraper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/enrich"
	"github.com/kryptonlabs/leadscraper/selectors"
)

// stubElement is one fake DOM node.
type stubElement struct {
	text     string
	attrs    map[string]string
	children map[string]*stubElement
	err      error
}

func (e *stubElement) Text(context.Context) (string, error) { return e.text, e.err }

func (e *stubElement) Attr(_ context.Context, name string) (string, error) {
	return e.attrs[name], e.err
}

func (e *stubElement) Click(context.Context) error          { return nil }
func (e *stubElement) ScrollIntoView(context.Context) error { return nil }

func (e *stubElement) Query(_ context.Context, selector string) (browser.Element, error) {
	child, ok := e.children[selector]
	if !ok {
		return nil, nil
	}

	return child, nil
}

// pageContent is what one URL serves in a fakeSite.
type pageContent struct {
	visible  map[string]bool
	elements map[string]*stubElement
	lists    map[string][]browser.Element
	navErr   error
}

// fakeSite maps URLs to page content; navigating to an unknown URL fails.
type fakeSite struct {
	pages map[string]*pageContent

	mu        sync.Mutex
	navigated []string
}

func (s *fakeSite) recordNav(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.navigated = append(s.navigated, url)
}

type stubPage struct {
	site    *fakeSite
	content *pageContent
	url     string
}

func (p *stubPage) Navigate(_ context.Context, url string) error {
	p.site.recordNav(url)

	content, ok := p.site.pages[url]
	if !ok {
		return errors.New("navigation failed: " + url)
	}

	if content.navErr != nil {
		return content.navErr
	}

	p.content = content
	p.url = url

	return nil
}

func (p *stubPage) WaitVisible(_ context.Context, selector string, _ time.Duration) error {
	if p.content != nil && p.content.visible[selector] {
		return nil
	}

	return errors.New("timeout waiting for " + selector)
}

func (p *stubPage) Query(_ context.Context, selector string) (browser.Element, error) {
	if p.content == nil {
		return nil, nil
	}

	el, ok := p.content.elements[selector]
	if !ok {
		return nil, nil
	}

	return el, nil
}

func (p *stubPage) QueryAll(_ context.Context, selector string) ([]browser.Element, error) {
	if p.content == nil {
		return nil, nil
	}

	return p.content.lists[selector], nil
}

func (p *stubPage) ScrollBy(context.Context, string, int) error { return nil }
func (p *stubPage) URL() string                                 { return p.url }
func (p *stubPage) Close() error                                { return nil }

type stubContext struct {
	site *fakeSite
}

func (c *stubContext) NewPage(context.Context) (browser.Page, error) {
	return &stubPage{site: c.site}, nil
}

func (c *stubContext) Reset(context.Context) error { return nil }
func (c *stubContext) Close() error                { return nil }

type stubPool struct {
	site *fakeSite
	gets int
}

func (p *stubPool) Get(context.Context) (browser.Context, error) {
	p.gets++

	return &stubContext{site: p.site}, nil
}

func (p *stubPool) Put(browser.Context) {}

type stubEnricher struct {
	mu       sync.Mutex
	contacts map[string]enrich.Contact
	calls    int
	panics   bool
}

func (e *stubEnricher) Enrich(_ context.Context, websiteURL string) enrich.Contact {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++

	if e.panics {
		panic("enricher exploded")
	}

	return e.contacts[websiteURL]
}

// testCatalog uses short locators so fixtures stay readable.
func testCatalog() *selectors.Catalog {
	return selectors.New(map[selectors.Field][]string{
		selectors.FieldBusinessListing: {".cards"},
		selectors.FieldName:            {".name"},
		selectors.FieldWebsite:         {".site"},
		selectors.FieldPhone:           {".phone"},
		selectors.FieldAddress:         {".addr"},
		selectors.FieldRating:          {".rating"},
	})
}

func noSleep(context.Context, time.Duration) error { return nil }
