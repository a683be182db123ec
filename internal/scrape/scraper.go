// Package scrape defines the external HTTP-scraper contract of spec.md
// §6. The CORE never performs HTTP fetches directly; see
// internal/webscrape for the concrete multi-format adapter wired at the
// engine edge.
package scrape

import "context"

// Page is one successfully scraped URL; Text is already noise-stripped.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Scraper fetches and extracts readable text for a batch of URLs. URLs
// that fail to fetch or parse are simply absent from the returned slice —
// there is no per-URL error type, matching spec.md §6's "Missing URLs
// mean fetch/parse failure."
type Scraper interface {
	ScrapeMany(ctx context.Context, urls []string) ([]Page, error)
}
