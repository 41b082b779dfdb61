package scraper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kryptonlabs/leadscraper/leads"
)

func TestPlacesSearch(t *testing.T) {
	var gotReq struct {
		TextQuery      string `json:"textQuery"`
		MaxResultCount int    `json:"maxResultCount"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-Goog-Api-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Goog-FieldMask"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_, _ = w.Write([]byte(`{
			"places": [
				{
					"displayName": {"text": "API Pizza Palace"},
					"formattedAddress": "12 Main St, Austin, TX",
					"websiteUri": "https://apipizza.example",
					"nationalPhoneNumber": "(555) 867-5309",
					"rating": 4.4,
					"userRatingCount": 210
				},
				{
					"displayName": {"text": "x"}
				}
			]
		}`))
	}))
	defer srv.Close()

	client := NewPlacesClient("test-key", WithPlacesEndpoint(srv.URL))

	got, err := client.Search(context.Background(), Query{
		BusinessType: "pizza",
		Location:     "Austin",
		MaxResults:   5,
	})
	require.NoError(t, err)

	assert.Equal(t, "pizza in Austin", gotReq.TextQuery)
	assert.Equal(t, 5, gotReq.MaxResultCount)

	// The one-letter place fails validation and is dropped.
	require.Len(t, got, 1)

	lead := got[0]
	assert.Equal(t, "API Pizza Palace", lead.Name)
	assert.Equal(t, "https://apipizza.example", lead.Website)
	assert.Equal(t, "(555) 867-5309", lead.Phone)
	assert.Equal(t, leads.SourceAPIFallback, lead.Source)
	assert.Equal(t, 210, lead.ReviewCount)
	// name +2, website +3, phone +2, address +1, rating +1
	assert.Equal(t, 9, lead.QualityScore)
}

func TestPlacesSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewPlacesClient("test-key", WithPlacesEndpoint(srv.URL))

	_, err := client.Search(context.Background(), Query{BusinessType: "pizza", Location: "Austin"})
	require.Error(t, err)
}

func TestPlacesSearchWithoutKey(t *testing.T) {
	client := NewPlacesClient("")

	_, err := client.Search(context.Background(), Query{BusinessType: "pizza", Location: "Austin"})
	require.Error(t, err)
}
