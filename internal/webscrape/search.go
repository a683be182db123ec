// Package webscrape provides the concrete search.Provider and
// scrape.Scraper adapters wired at the engine edge: a Brave Search API
// client and a multi-format (HTML/PDF/DOCX/XLSX) page scraper.
//
// Grounded on internal/tools/search.go's SearchTool (Brave Search HTTP
// call, JSON response shape) adapted from the tool-call Execute
// signature to the search.Provider contract.
package webscrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"deepresearch/internal/search"
)

const braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider implements search.Provider against the Brave Search API.
type BraveProvider struct {
	apiKey     string
	httpClient *http.Client
}

// NewBraveProvider constructs a BraveProvider. An empty apiKey is valid;
// every search then fails closed to an empty hit list, per spec.md §6
// ("must never raise into the core").
func NewBraveProvider(apiKey string) *BraveProvider {
	return &BraveProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type braveSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search implements search.Provider.
func (p *BraveProvider) Search(ctx context.Context, query string, maxResults int) ([]search.Hit, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("webscrape: no Brave Search API key configured")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error %d", resp.StatusCode)
	}

	var decoded braveSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]search.Hit, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		if len(hits) >= maxResults {
			break
		}
		hits = append(hits, search.Hit{URL: r.URL, Title: r.Title, Snippet: r.Description})
	}
	return hits, nil
}
