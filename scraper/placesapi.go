package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kryptonlabs/leadscraper/leads"
)

const (
	placesEndpoint = "https://places.googleapis.com/v1/places:searchText"

	placesFieldMask = "places.displayName,places.formattedAddress," +
		"places.websiteUri,places.nationalPhoneNumber,places.rating,places.userRatingCount"

	// Hard limit of the searchText API.
	placesMaxResultCount = 20
)

// PlacesClient queries the structured-data fallback provider when scraping
// comes up short. Its leads carry source=api_fallback and never include
// email or socials; the scoring policy demotes them naturally.
type PlacesClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type PlacesOption func(*PlacesClient)

func WithPlacesHTTPClient(client *http.Client) PlacesOption {
	return func(c *PlacesClient) { c.client = client }
}

func WithPlacesEndpoint(endpoint string) PlacesOption {
	return func(c *PlacesClient) { c.endpoint = endpoint }
}

func NewPlacesClient(apiKey string, opts ...PlacesOption) *PlacesClient {
	c := &PlacesClient{
		apiKey:   apiKey,
		endpoint: placesEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type placesResponse struct {
	Places []struct {
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress    string  `json:"formattedAddress"`
		WebsiteURI          string  `json:"websiteUri"`
		NationalPhoneNumber string  `json:"nationalPhoneNumber"`
		Rating              float64 `json:"rating"`
		UserRatingCount     int     `json:"userRatingCount"`
	} `json:"places"`
}

// Search runs one text query against the provider.
func (c *PlacesClient) Search(ctx context.Context, query Query) ([]leads.Lead, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("places api key is empty")
	}

	count := query.MaxResults
	if count <= 0 || count > placesMaxResultCount {
		count = placesMaxResultCount
	}

	payload, err := json.Marshal(map[string]any{
		"textQuery":      query.BusinessType + " in " + query.Location,
		"maxResultCount": count,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", placesFieldMask)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places api error: %d, %s", resp.StatusCode, string(body))
	}

	var parsed placesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse places response: %w", err)
	}

	ans := make([]leads.Lead, 0, len(parsed.Places))

	for _, place := range parsed.Places {
		lead := leads.New()
		lead.Name = place.DisplayName.Text
		lead.Address = place.FormattedAddress
		lead.Website = place.WebsiteURI
		lead.Phone = place.NationalPhoneNumber
		lead.Rating = place.Rating
		lead.ReviewCount = place.UserRatingCount
		lead.Source = leads.SourceAPIFallback
		lead.CalculateQuality()

		if err := lead.Validate(); err != nil {
			continue
		}

		ans = append(ans, *lead)
	}

	return ans, nil
}
