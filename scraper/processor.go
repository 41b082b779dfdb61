package scraper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/cache"
	"github.com/kryptonlabs/leadscraper/enrich"
	"github.com/kryptonlabs/leadscraper/extract"
	"github.com/kryptonlabs/leadscraper/leads"
	"github.com/kryptonlabs/leadscraper/selectors"
)

const (
	detailOpenAttempts = 2
	detailOpenBackoff  = 500 * time.Millisecond
)

// Listing is one discovered result card plus the URL of its detail view.
type Listing struct {
	Index     int
	Card      browser.Element
	DetailURL string
}

// Enricher recovers contact data from a lead's website.
type Enricher interface {
	Enrich(ctx context.Context, websiteURL string) enrich.Contact
}

// ContactCache is the slice of the result cache the processor needs for
// website enrichment results.
type ContactCache interface {
	GetContact(ctx context.Context, key string) (enrich.Contact, bool)
	SetContact(ctx context.Context, key string, contact enrich.Contact)
}

// Processor turns one Listing into a finalized Lead.
type Processor struct {
	extractor *extract.Extractor
	enricher  Enricher
	contacts  ContactCache
	logger    *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

type ProcessorOption func(*Processor)

func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// WithContactCache lets enrichment results survive across listings and runs.
func WithContactCache(contacts ContactCache) ProcessorOption {
	return func(p *Processor) { p.contacts = contacts }
}

func NewProcessor(extractor *extract.Extractor, enricher Enricher, opts ...ProcessorOption) *Processor {
	p := &Processor{
		extractor: extractor,
		enricher:  enricher,
		logger:    slog.Default(),
		sleep:     ctxSleep,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Process runs one listing's lifecycle: name, detail view, concurrent field
// extraction, website enrichment, score. A nil result means the listing
// contributed nothing; that is a skip, not an error, and one bad listing can
// never take the batch down.
func (p *Processor) Process(ctx context.Context, bctx browser.Context, listing Listing) (result *leads.Lead) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("listing processing panicked", "index", listing.Index, "panic", r)

			result = nil
		}
	}()

	start := p.now()
	lead := leads.New()

	if listing.Card != nil {
		name, _, err := p.extractor.Text(ctx, listing.Card, selectors.FieldName)
		if err == nil {
			lead.Name = name
		}
	}

	page, err := p.openDetail(ctx, bctx, listing.DetailURL)
	if err != nil {
		p.logger.Debug("detail view unavailable", "index", listing.Index, "err", err)
	}

	if page != nil {
		defer func() { _ = page.Close() }()

		// Some markup generations only render the name in the detail pane.
		if lead.Name == "" {
			name, _, err := p.extractor.Text(ctx, page, selectors.FieldName)
			if err == nil {
				lead.Name = name
			}
		}
	}

	if lead.Name == "" {
		return nil
	}

	if page != nil {
		p.extractFields(ctx, page, lead)
	}

	if lead.Website != "" && p.enricher != nil {
		p.enrichLead(ctx, lead)
	}

	lead.ProcessingTime = p.now().Sub(start)
	lead.CalculateQuality()

	if err := lead.Validate(); err != nil {
		p.logger.Debug("discarding implausible lead", "index", listing.Index, "err", err)

		return nil
	}

	return lead
}

// openDetail navigates a fresh page to the listing's detail URL with bounded
// retries. A nil page with an error means the detail view stays closed; the
// caller keeps whatever it already has.
func (p *Processor) openDetail(ctx context.Context, bctx browser.Context, detailURL string) (browser.Page, error) {
	if detailURL == "" {
		return nil, errors.New("listing has no detail url")
	}

	var lastErr error

	for attempt := 0; attempt < detailOpenAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, detailOpenBackoff); err != nil {
				return nil, err
			}
		}

		page, err := bctx.NewPage(ctx)
		if err != nil {
			lastErr = err

			continue
		}

		if err := page.Navigate(ctx, detailURL); err != nil {
			lastErr = err

			_ = page.Close()

			continue
		}

		return page, nil
	}

	return nil, lastErr
}

// extractFields pulls the structured detail fields concurrently. Each field
// fails independently; a dead context just leaves its field empty.
func (p *Processor) extractFields(ctx context.Context, page browser.Page, lead *leads.Lead) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		website, _, err := p.extractor.Attr(gctx, page, selectors.FieldWebsite, "href")
		if err == nil {
			lead.Website = website
		}

		return nil
	})

	g.Go(func() error {
		phone, _, err := p.extractor.Text(gctx, page, selectors.FieldPhone)
		if err == nil {
			lead.Phone = phone
		}

		return nil
	})

	g.Go(func() error {
		address, _, err := p.extractor.Text(gctx, page, selectors.FieldAddress)
		if err == nil {
			lead.Address = address
		}

		return nil
	})

	g.Go(func() error {
		text, _, err := p.extractor.Text(gctx, page, selectors.FieldRating)
		if err == nil {
			lead.Rating, lead.ReviewCount = extract.ParseRating(text)
		}

		return nil
	})

	_ = g.Wait()
}

// enrichLead merges companion-website contact data into the lead. On-page
// values always win; enrichment only backfills.
func (p *Processor) enrichLead(ctx context.Context, lead *leads.Lead) {
	key := cache.WebsiteKey(lead.Website)

	var contact enrich.Contact

	if p.contacts != nil {
		if cached, ok := p.contacts.GetContact(ctx, key); ok {
			contact = cached
		} else {
			contact = p.enricher.Enrich(ctx, lead.Website)
			p.contacts.SetContact(ctx, key, contact)
		}
	} else {
		contact = p.enricher.Enrich(ctx, lead.Website)
	}

	if lead.Email == "" {
		lead.Email = contact.Email
	}

	for platform, link := range contact.Socials {
		lead.SetSocial(platform, link)
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
