// Package enrich visits a lead's website and pulls out contact data the
// listing source does not expose: an email address and social profile links.
// Enrichment is strictly best-effort; any failure yields an empty Contact and
// never an error, so one slow or broken website cannot hurt the run.
package enrich

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	emailaddress "github.com/mcnijman/go-emailaddress"
	"golang.org/x/sync/semaphore"

	"github.com/kryptonlabs/leadscraper/leads"
)

// Pages are read through a hard cap; contact details live near the top of
// the document and anything past the cap is mostly scripts.
const maxBodyBytes = 20 << 10

const fetchTimeout = 10 * time.Second

// Simultaneous outbound fetches are capped independently of the listing
// worker cap; third-party sites get at most this many connections at once.
const defaultMaxFetches = 4

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
}

// Waiter gates outbound requests. The production waiter is
// ratelimit.Limiter.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Contact is what enrichment recovered from one website.
type Contact struct {
	Email   string            `json:"email"`
	Socials map[string]string `json:"socials"`
}

func (c Contact) empty() bool {
	if c.Email != "" {
		return false
	}

	for _, v := range c.Socials {
		if v != "" {
			return false
		}
	}

	return true
}

type Enricher struct {
	client     *http.Client
	limiter    Waiter
	logger     *slog.Logger
	userAgents []string
	sem        *semaphore.Weighted

	mu      sync.Mutex
	uaIndex int
}

type Option func(*Enricher)

func WithHTTPClient(client *http.Client) Option {
	return func(e *Enricher) { e.client = client }
}

func WithLimiter(limiter Waiter) Option {
	return func(e *Enricher) { e.limiter = limiter }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) { e.logger = logger }
}

func WithMaxFetches(n int64) Option {
	return func(e *Enricher) { e.sem = semaphore.NewWeighted(n) }
}

func New(opts ...Option) *Enricher {
	e := &Enricher{
		client:     &http.Client{Timeout: fetchTimeout},
		logger:     slog.Default(),
		userAgents: defaultUserAgents,
		sem:        semaphore.NewWeighted(defaultMaxFetches),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Enrich fetches the website and extracts contact data. When the homepage
// leaves fields empty it probes at most one contact/about page and backfills
// from there; homepage values are never overwritten.
func (e *Enricher) Enrich(ctx context.Context, websiteURL string) Contact {
	contact := Contact{Socials: map[string]string{}}

	body, err := e.fetch(ctx, websiteURL)
	if err != nil {
		e.logger.Debug("enrichment fetch failed", "url", websiteURL, "err", err)

		return contact
	}

	e.extractInto(&contact, body)

	if contact.Email != "" && len(contact.Socials) >= len(socialPatterns) {
		return contact
	}

	probeURL := contactPageURL(websiteURL, body)
	if probeURL == "" {
		return contact
	}

	probeBody, err := e.fetch(ctx, probeURL)
	if err != nil {
		e.logger.Debug("contact page fetch failed", "url", probeURL, "err", err)

		return contact
	}

	e.extractInto(&contact, probeBody)

	return contact
}

func (e *Enricher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", e.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func (e *Enricher) nextUserAgent() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ua := e.userAgents[e.uaIndex%len(e.userAgents)]
	e.uaIndex++

	return ua
}

// extractInto backfills empty contact fields from one page body.
func (e *Enricher) extractInto(contact *Contact, body []byte) {
	if contact.Email == "" {
		contact.Email = extractEmail(body)
	}

	for platform, link := range extractSocials(body) {
		if contact.Socials[platform] == "" {
			contact.Socials[platform] = link
		}
	}
}

// extractEmail prefers mailto anchors over a raw text scan; anchors are an
// explicit authoring signal while the scan picks up asset names and hashes.
func extractEmail(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		var found string

		doc.Find("a[href^='mailto:']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}

			raw := strings.TrimPrefix(href, "mailto:")
			if i := strings.IndexByte(raw, '?'); i >= 0 {
				raw = raw[:i]
			}

			email, err := emailaddress.Parse(strings.TrimSpace(raw))
			if err != nil || !isLikelyRealEmail(email.String()) {
				return true
			}

			found = strings.ToLower(email.String())

			return false
		})

		if found != "" {
			return found
		}
	}

	for _, addr := range emailaddress.Find(body, false) {
		if isLikelyRealEmail(addr.String()) {
			return strings.ToLower(addr.String())
		}
	}

	return ""
}

// isLikelyRealEmail drops placeholder domains, transactional senders, and
// asset names the raw scan mistakes for addresses.
func isLikelyRealEmail(email string) bool {
	email = strings.ToLower(email)

	for _, pattern := range []string{
		"@example.com",
		"@test.com",
		"@localhost",
		"@sentry.io",
		"@wixpress.com",
		"@domain.com",
		"@yourdomain",
		"@placeholder",
		"noreply@",
		"no-reply@",
		"donotreply@",
		"postmaster@",
		"@2x.",
		"@3x.",
		".png",
		".jpg",
		".gif",
		".svg",
		".webp",
	} {
		if strings.Contains(email, pattern) {
			return false
		}
	}

	local, _, ok := strings.Cut(email, "@")
	if !ok || len(local) > 64 {
		return false
	}

	// Long hex local parts are build artifacts, not inboxes.
	if len(local) > 8 && isHexString(local) {
		return false
	}

	return true
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}

	return true
}

var socialPatterns = map[string]*regexp.Regexp{
	leads.PlatformInstagram: regexp.MustCompile(`https?://(?:www\.)?instagram\.com/[A-Za-z0-9_.]+`),
	leads.PlatformFacebook:  regexp.MustCompile(`https?://(?:www\.)?facebook\.com/[A-Za-z0-9_.\-]+`),
	leads.PlatformTikTok:    regexp.MustCompile(`https?://(?:www\.)?tiktok\.com/@[A-Za-z0-9_.]+`),
	leads.PlatformTwitter:   regexp.MustCompile(`https?://(?:www\.)?(?:twitter|x)\.com/[A-Za-z0-9_]+`),
}

// Paths that match the platform patterns but are widgets, not profiles.
var socialPathDenylist = []string{"/share", "/sharer", "/intent", "/plugins", "/embed", "/hashtag"}

func extractSocials(body []byte) map[string]string {
	text := string(body)
	found := make(map[string]string, len(socialPatterns))

	for platform, re := range socialPatterns {
		for _, match := range re.FindAllString(text, -1) {
			if isShareLink(match) {
				continue
			}

			found[platform] = canonicalSocial(platform, match)

			break
		}
	}

	return found
}

func isShareLink(link string) bool {
	lower := strings.ToLower(link)

	for _, p := range socialPathDenylist {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return false
}

// canonicalSocial normalizes profile URLs so deduplication and exports see
// one spelling. Twitter links are rewritten onto the bare x.com host, with
// the path preserved.
func canonicalSocial(platform, link string) string {
	link = strings.TrimSuffix(link, "/")

	if platform != leads.PlatformTwitter {
		return link
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host == "twitter.com" {
		host = "x.com"
	}

	u.Host = host

	return u.String()
}

// contactPageURL finds the first anchor that looks like a contact or about
// page and resolves it against the site base. Empty when none exists.
func contactPageURL(baseURL string, body []byte) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var found string

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		needle := strings.ToLower(href + " " + s.Text())

		if !strings.Contains(needle, "contact") &&
			!strings.Contains(needle, "about") &&
			!strings.Contains(needle, "connect") {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "#") {
			return true
		}

		resolved := base.ResolveReference(ref)
		if resolved.Host != base.Host {
			return true
		}

		found = resolved.String()

		return false
	})

	if found == baseURL {
		return ""
	}

	return found
}
