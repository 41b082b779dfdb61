package scraper

import "errors"

var (
	// ErrInvalidQuery means the caller's query is empty or malformed. It is
	// raised before any browser or network activity.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrListingAcquisitionFailed means no listing-collection locator matched
	// anything on the results page. The orchestrator converts it into an
	// empty result set: nothing found is a legitimate terminal state.
	ErrListingAcquisitionFailed = errors.New("no listing collection locator matched")
)
