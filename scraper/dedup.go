package scraper

import (
	"strings"

	"github.com/kryptonlabs/leadscraper/leads"
)

// Two names collide when one contains the other and the shorter one covers
// at least this share of the longer one, or when the longer name is the
// shorter plus a descriptor suffix at a word boundary. "Haywire" vs
// "Haywire Restaurant" collides; "Star" vs "Starbucks" does not.
const dedupSimilarity = 0.7

// Dedupe drops near-duplicate leads, keeping the first-seen of each
// collision group. The operation is idempotent: running it on its own output
// returns the same list.
func Dedupe(ls []leads.Lead) []leads.Lead {
	kept := make([]leads.Lead, 0, len(ls))
	keptNames := make([]string, 0, len(ls))

	for _, lead := range ls {
		name := normalizeName(lead.Name)

		collides := false

		for _, seen := range keptNames {
			if namesCollide(name, seen) {
				collides = true

				break
			}
		}

		if collides {
			continue
		}

		kept = append(kept, lead)
		keptNames = append(keptNames, name)
	}

	return kept
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func namesCollide(a, b string) bool {
	if a == b {
		return true
	}

	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	if shorter == "" || !strings.Contains(longer, shorter) {
		return false
	}

	if strings.HasPrefix(longer, shorter+" ") {
		return true
	}

	return float64(len(shorter))/float64(len(longer)) > dedupSimilarity
}
