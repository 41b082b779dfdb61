package leads

// Summary holds the aggregate counts exposed alongside a result set.
type Summary struct {
	Total       int `json:"total"`
	WithWebsite int `json:"with_website"`
	WithEmail   int `json:"with_email"`
	WithPhone   int `json:"with_phone"`

	// Score distribution: high >= 7, medium 4..6, low < 4.
	HighQuality   int `json:"high_quality"`
	MediumQuality int `json:"medium_quality"`
	LowQuality    int `json:"low_quality"`
}

func Summarize(items []Lead) Summary {
	var s Summary

	s.Total = len(items)

	for i := range items {
		if items[i].Website != "" {
			s.WithWebsite++
		}

		if items[i].Email != "" {
			s.WithEmail++
		}

		if items[i].Phone != "" {
			s.WithPhone++
		}

		switch score := items[i].QualityScore; {
		case score >= 7:
			s.HighQuality++
		case score >= 4:
			s.MediumQuality++
		default:
			s.LowQuality++
		}
	}

	return s
}
