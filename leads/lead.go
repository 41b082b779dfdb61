package leads

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Source records where a lead came from. Cache invalidation and ranking
// tie-breaks treat scraped data as more authoritative than API data.
type Source string

const (
	SourceScraped     Source = "scraped"
	SourceAPIFallback Source = "api_fallback"
)

// Social platforms we extract profile URLs for.
const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
	PlatformTikTok    = "tiktok"
	PlatformTwitter   = "twitter"
)

// Lead is one discovered business. Every contact field uses the empty
// string as the "not found" sentinel; a Lead with an empty Name is never
// surfaced.
type Lead struct {
	Name           string            `json:"name"`
	Website        string            `json:"website"`
	Phone          string            `json:"phone"`
	Address        string            `json:"address"`
	Email          string            `json:"email"`
	Socials        map[string]string `json:"socials"`
	Rating         float64           `json:"rating"`
	ReviewCount    int               `json:"review_count"`
	QualityScore   int               `json:"quality_score"`
	Source         Source            `json:"source"`
	ProcessingTime time.Duration     `json:"processing_time"`
}

// New returns an empty Lead ready to be populated field by field.
func New() *Lead {
	return &Lead{
		Socials: map[string]string{
			PlatformInstagram: "",
			PlatformFacebook:  "",
			PlatformTikTok:    "",
			PlatformTwitter:   "",
		},
		Source: SourceScraped,
	}
}

func (l *Lead) Social(platform string) string {
	if l.Socials == nil {
		return ""
	}

	return l.Socials[platform]
}

// SetSocial stores a profile URL, keeping the earlier value when one is
// already present. Enrichment data must never overwrite an on-page value.
func (l *Lead) SetSocial(platform, url string) {
	if url == "" {
		return
	}

	if l.Socials == nil {
		l.Socials = make(map[string]string, 4)
	}

	if l.Socials[platform] == "" {
		l.Socials[platform] = url
	}
}

func (l *Lead) hasAnySocial() bool {
	for _, v := range l.Socials {
		if v != "" {
			return true
		}
	}

	return false
}

// Quality score weights. The weighting is fixed: name +2, website +3,
// phone +2, email +3, address +1, rating +1, any social +1, capped at 10.
const (
	scoreName    = 2
	scoreWebsite = 3
	scorePhone   = 2
	scoreEmail   = 3
	scoreAddress = 1
	scoreRating  = 1
	scoreSocial  = 1
	scoreCap     = 10
)

// CalculateQuality recomputes QualityScore from the currently populated
// fields. It is deterministic and monotonic: populating a previously empty
// field never lowers the score.
func (l *Lead) CalculateQuality() {
	score := 0

	if l.Name != "" {
		score += scoreName
	}

	if l.Website != "" {
		score += scoreWebsite
	}

	if l.Phone != "" {
		score += scorePhone
	}

	if l.Email != "" {
		score += scoreEmail
	}

	if l.Address != "" {
		score += scoreAddress
	}

	if l.Rating > 0 {
		score += scoreRating
	}

	if l.hasAnySocial() {
		score += scoreSocial
	}

	if score > scoreCap {
		score = scoreCap
	}

	l.QualityScore = score
}

func (l *Lead) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(l.Name)) < 3 {
		return fmt.Errorf("name too short: %q", l.Name)
	}

	if l.Rating < 0 || l.Rating > 5 {
		return fmt.Errorf("rating out of range: %f", l.Rating)
	}

	if l.ReviewCount < 0 {
		return fmt.Errorf("negative review count: %d", l.ReviewCount)
	}

	return nil
}

func CsvHeaders() []string {
	return []string{
		"name",
		"website",
		"email",
		"phone",
		"address",
		"instagram",
		"facebook",
		"twitter",
		"tiktok",
		"rating",
		"review_count",
		"quality_score",
		"source",
		"processing_time",
	}
}

func (l *Lead) CsvRow() []string {
	return []string{
		l.Name,
		l.Website,
		l.Email,
		l.Phone,
		l.Address,
		l.Social(PlatformInstagram),
		l.Social(PlatformFacebook),
		l.Social(PlatformTwitter),
		l.Social(PlatformTikTok),
		fmt.Sprintf("%.1f", l.Rating),
		fmt.Sprintf("%d", l.ReviewCount),
		fmt.Sprintf("%d", l.QualityScore),
		string(l.Source),
		fmt.Sprintf("%.2fs", l.ProcessingTime.Seconds()),
	}
}
