// Package selectors maintains ordered locator candidates per semantic field.
// The target site's markup is unstable and unversioned, so every field keeps
// a chain of alternatives with a success-weighted ordering learned during the
// process lifetime. Weights are never persisted: a restart falls back to the
// declared order, which bounds staleness when the site reshuffles its DOM.
package selectors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Field identifies a semantic field a locator chain resolves.
type Field string

const (
	FieldBusinessListing Field = "business_listing"
	FieldName            Field = "name"
	FieldWebsite         Field = "website"
	FieldPhone           Field = "phone"
	FieldAddress         Field = "address"
	FieldRating          Field = "rating"
)

var ErrUnknownFieldKind = errors.New("unknown field kind")

// decay applied to the prior weight on every recorded outcome.
const weightDecay = 0.9

type strategy struct {
	locator string
	weight  float64
	// declaration position, used to keep ties deterministic
	pos int
}

// Profile is the ordered locator chain for one field plus its running
// success weights.
type Profile struct {
	strategies []strategy
}

// Catalog holds one Profile per field. Safe for concurrent use.
type Catalog struct {
	mu       sync.Mutex
	profiles map[Field]*Profile
}

// Default returns a Catalog pre-loaded with the locator chains for the
// listing source's current markup generations, newest first.
func Default() *Catalog {
	return New(map[Field][]string{
		FieldBusinessListing: {
			`[role="article"]`,
			`[data-result-index]`,
			`div[jsaction*="mouseover"]`,
			`.hfpxzc`,
			`.Nv2PK`,
			`div[data-feature-id]`,
		},
		FieldName: {
			`.qBF1Pd`,
			`.NrDZNb`,
			`.fontHeadlineSmall`,
			`.hfpxzc .fontHeadlineSmall`,
			`h1[data-attrid="title"]`,
		},
		FieldWebsite: {
			`[data-value="Website"] a`,
			`a[data-item-id*="authority"]`,
			`a[href*="http"]:not([href*="google"]):not([href*="maps"])`,
			`.CsEnBe a[href*="http"]`,
		},
		FieldPhone: {
			`button[data-item-id*="phone"]`,
			`[data-value*="phone"] span`,
			`.z5jxId`,
			`span[data-phone]`,
		},
		FieldAddress: {
			`button[data-item-id="address"]`,
			`[data-value="Address"] div`,
			`.rogA2c`,
			`.Io6YTe`,
		},
		FieldRating: {
			`[data-value="Rating"] span`,
			`span[role="img"][aria-label*="star"]`,
			`.F7nice`,
		},
	})
}

// New builds a Catalog from explicit locator chains. The declared order is
// the initial priority order.
func New(chains map[Field][]string) *Catalog {
	c := &Catalog{profiles: make(map[Field]*Profile, len(chains))}

	for field, locators := range chains {
		p := &Profile{strategies: make([]strategy, len(locators))}
		for i, loc := range locators {
			p.strategies[i] = strategy{locator: loc, pos: i}
		}

		c.profiles[field] = p
	}

	return c
}

// Candidates returns the locator chain for field, highest weight first.
// Ties keep the declared order so tests stay deterministic.
func (c *Catalog) Candidates(field Field) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.profiles[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFieldKind, field)
	}

	ordered := make([]strategy, len(p.strategies))
	copy(ordered, p.strategies)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].weight != ordered[j].weight {
			return ordered[i].weight > ordered[j].weight
		}

		return ordered[i].pos < ordered[j].pos
	})

	ans := make([]string, len(ordered))
	for i := range ordered {
		ans[i] = ordered[i].locator
	}

	return ans, nil
}

// RecordOutcome folds one attempt into the locator's weight:
// w = w*decay + (succeeded ? 1 : 0). Latency is accepted for future use and
// diagnostics; it does not influence the weight. Outcomes for locators the
// catalog does not know are ignored.
func (c *Catalog) RecordOutcome(field Field, locator string, succeeded bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.profiles[field]
	if !ok {
		return
	}

	for i := range p.strategies {
		if p.strategies[i].locator != locator {
			continue
		}

		p.strategies[i].weight *= weightDecay
		if succeeded {
			p.strategies[i].weight++
		}

		return
	}
}
