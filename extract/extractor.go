// Package extract resolves semantic fields from live DOM nodes by walking
// the locator chains a selectors.Catalog maintains. Every attempt outcome is
// fed back into the catalog so the chain ordering tracks the markup the site
// currently serves.
package extract

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kryptonlabs/leadscraper/browser"
	"github.com/kryptonlabs/leadscraper/selectors"
)

// Queryable is the smallest surface the extractor needs. Both a page and an
// element satisfy it, so the same extractor works on the result card and on
// the opened detail view.
type Queryable interface {
	Query(ctx context.Context, selector string) (browser.Element, error)
}

// Extractor resolves field values against a Queryable root.
type Extractor struct {
	catalog *selectors.Catalog
	logger  *slog.Logger
}

func New(catalog *selectors.Catalog, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{catalog: catalog, logger: logger}
}

// Text walks the field's locator candidates in priority order and returns
// the first plausible text value together with the locator that produced it.
// An exhausted chain is not an error: the result is simply empty. Only a dead
// browser context aborts the walk.
func (e *Extractor) Text(ctx context.Context, root Queryable, field selectors.Field) (string, string, error) {
	return e.walk(ctx, root, field, func(ctx context.Context, el browser.Element) (string, error) {
		return el.Text(ctx)
	})
}

// Attr is Text for an element attribute, typically href.
func (e *Extractor) Attr(ctx context.Context, root Queryable, field selectors.Field, name string) (string, string, error) {
	return e.walk(ctx, root, field, func(ctx context.Context, el browser.Element) (string, error) {
		return el.Attr(ctx, name)
	})
}

func (e *Extractor) walk(
	ctx context.Context,
	root Queryable,
	field selectors.Field,
	read func(context.Context, browser.Element) (string, error),
) (string, string, error) {
	candidates, err := e.catalog.Candidates(field)
	if err != nil {
		return "", "", err
	}

	for _, locator := range candidates {
		start := time.Now()

		value, err := e.attempt(ctx, root, locator, read)
		if err != nil {
			e.catalog.RecordOutcome(field, locator, false, time.Since(start))

			if errors.Is(err, browser.ErrContextInvalid) {
				return "", "", err
			}

			e.logger.Debug("locator failed", "field", field, "locator", locator, "err", err)

			continue
		}

		if value == "" || !Plausible(field, value) {
			e.catalog.RecordOutcome(field, locator, false, time.Since(start))

			continue
		}

		e.catalog.RecordOutcome(field, locator, true, time.Since(start))

		return value, locator, nil
	}

	return "", "", nil
}

func (e *Extractor) attempt(
	ctx context.Context,
	root Queryable,
	locator string,
	read func(context.Context, browser.Element) (string, error),
) (string, error) {
	el, err := root.Query(ctx, locator)
	if err != nil {
		return "", err
	}

	if el == nil {
		return "", nil
	}

	value, err := read(ctx, el)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(value), nil
}

// nameDenylist holds page chrome the name locators occasionally land on.
var nameDenylist = map[string]struct{}{
	"results":   {},
	"map":       {},
	"search":    {},
	"google":    {},
	"loading":   {},
	"sponsored": {},
}

// Plausible reports whether value passes the field's sanity filter. A value
// that fails is treated exactly like a miss so the next locator gets a turn.
func Plausible(field selectors.Field, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	switch field {
	case selectors.FieldName:
		if utf8.RuneCountInString(value) < 3 {
			return false
		}

		_, denied := nameDenylist[strings.ToLower(value)]

		return !denied
	case selectors.FieldPhone:
		return len(value) > 5
	case selectors.FieldWebsite:
		return plausibleWebsite(value)
	default:
		return true
	}
}

func plausibleWebsite(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	host := strings.ToLower(u.Host)

	for _, own := range []string{"google.", "gstatic.", "googleusercontent."} {
		if strings.Contains(host, own) {
			return false
		}
	}

	return !strings.HasPrefix(host, "maps.")
}

var (
	ratingRe  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
	reviewsRe = regexp.MustCompile(`\(?(\d[\d,.]*)\)?\s*reviews?`)
)

// ParseRating pulls a star rating and, when present, a review count out of
// free text such as "4.6 stars 1,284 Reviews". Ratings outside [0,5] are
// discarded.
func ParseRating(text string) (float64, int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, 0
	}

	var rating float64

	if m := ratingRe.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil && v >= 0 && v <= 5 {
			rating = v
		}
	}

	var reviews int

	if m := reviewsRe.FindStringSubmatch(strings.ToLower(text)); m != nil {
		digits := strings.NewReplacer(",", "", ".", "").Replace(m[1])

		if v, err := strconv.Atoi(digits); err == nil {
			reviews = v
		}
	}

	return rating, reviews
}
