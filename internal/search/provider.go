// Package search defines the external search-provider contract of
// spec.md §6. The CORE never calls a concrete search API directly; see
// internal/webscrape for the Brave-backed adapter wired at the engine
// edge.
package search

import "context"

// Hit is one search result.
type Hit struct {
	URL     string
	Title   string
	Snippet string
}

// Provider performs a web search. It must never raise into the core: on
// failure it returns an empty slice and a nil or non-nil error — callers
// (SearchSubagent) treat any error identically to an empty result, per
// spec.md §7 "Search failure".
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Hit, error)
}
