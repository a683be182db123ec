// Package aisearch implements the one-shot AI search operation of
// spec.md §1/§2 item 10: given a query, it answers directly from live web
// sources instead of running the full plan/search/synthesize iteration
// loop.
//
// Grounded on _examples/original_source/shandu/services/ai_search.py's
// AISearchService.search: gather sources in search-hit order, ask the
// model for a four-section markdown answer whose [1], [2], ... markers
// map to source order, and fall back to a deterministic snippet digest
// in the same order on any LLM failure.
package aisearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"deepresearch/internal/llm"
	"deepresearch/internal/scrape"
	"deepresearch/internal/search"
	"deepresearch/internal/types"
)

const (
	maxExcerptRunes  = 1400
	maxSnippetRunes  = 300
	maxFallbackLines = 8
)

// Service is the AISearchService.
type Service struct {
	client   llm.Client
	provider search.Provider
	scraper  scrape.Scraper
	model    string
}

// New constructs an AISearchService.
func New(client llm.Client, provider search.Provider, scraper scrape.Scraper, model string) *Service {
	if model == "" {
		model = llm.DefaultModel
	}
	return &Service{client: client, provider: provider, scraper: scraper, model: model}
}

// Search answers query directly from live web sources. It never returns
// an error: any search, scrape, or LLM failure degrades to a
// deterministic fallback, per spec.md §7.
func (s *Service) Search(ctx context.Context, query string, maxResults, maxPages int, detail types.DetailLevel) types.AISearchResult {
	maxResults = clampRange(maxResults, 1, 20, 8)
	maxPages = clampRange(maxPages, 1, 10, 3)

	hits, _ := s.provider.Search(ctx, query, maxResults)

	pageURLs := make([]string, 0, len(hits))
	for i, h := range hits {
		if i >= maxPages {
			break
		}
		pageURLs = append(pageURLs, h.URL)
	}
	pages, _ := s.scraper.ScrapeMany(ctx, pageURLs)
	scrapedByURL := make(map[string]scrape.Page, len(pages))
	for _, p := range pages {
		scrapedByURL[p.URL] = p
	}

	sources := buildSources(hits, scrapedByURL)
	if len(sources) == 0 {
		return types.AISearchResult{
			Query:          query,
			AnswerMarkdown: fmt.Sprintf("# %s\n\nNo search results were returned for this query.", query),
			RunStats:       map[string]any{"sources": 0, "scraped_pages": 0},
		}
	}

	answer := s.modelAnswer(ctx, query, detail, sources)
	if answer == "" {
		answer = fallbackAnswer(query, sources)
	}

	return types.AISearchResult{
		Query:          query,
		AnswerMarkdown: answer,
		Sources:        sources,
		RunStats:       map[string]any{"sources": len(sources), "scraped_pages": len(pages)},
	}
}

func buildSources(hits []search.Hit, scrapedByURL map[string]scrape.Page) []types.AISearchSource {
	seen := make(map[string]bool, len(hits))
	sources := make([]types.AISearchSource, 0, len(hits))
	for _, hit := range hits {
		if hit.URL == "" || seen[hit.URL] {
			continue
		}
		seen[hit.URL] = true

		excerpt := ""
		if page, ok := scrapedByURL[hit.URL]; ok {
			excerpt = truncateRunes(strings.TrimSpace(page.Text), maxExcerptRunes)
		}
		snippet := strings.TrimSpace(hit.Snippet)
		if snippet == "" {
			snippet = truncateRunes(excerpt, maxSnippetRunes)
		}
		title := strings.TrimSpace(hit.Title)
		if title == "" {
			title = hit.URL
		}

		sources = append(sources, types.AISearchSource{
			Title:       title,
			URL:         hit.URL,
			Snippet:     snippet,
			TextExcerpt: excerpt,
		})
	}
	return sources
}

// aiSearchPayload mirrors the original's json.dumps(payload) input to the
// analyst worker.
type aiSearchPayload struct {
	Query       string                 `json:"query"`
	DetailLevel types.DetailLevel      `json:"detail_level"`
	Sources     []types.AISearchSource `json:"sources"`
}

func (s *Service) modelAnswer(ctx context.Context, query string, detail types.DetailLevel, sources []types.AISearchSource) string {
	worker := llm.Worker{
		Name:  "ai-search-analyst",
		Model: s.model,
		Instructions: "You are AISearchAnalyst. Answer directly with technical rigor and " +
			"coherent long-form reasoning. Use only provided sources, avoid fabrication, and " +
			"include clear caveats for uncertainty. Citations must map to source order.",
	}

	payload, err := json.Marshal(aiSearchPayload{Query: query, DetailLevel: detail, Sources: sources})
	if err != nil {
		return ""
	}

	prompt := fmt.Sprintf(
		"Write a markdown response that answers the query directly.\n"+
			"Minimum body length: %d words.\n"+
			"Use citation markers [1], [2], ... that map to source order.\n"+
			"Required sections:\n"+
			"# <Title>\n"+
			"## Answer\n"+
			"## Supporting Evidence\n"+
			"## Caveats\n"+
			"## Sources\n"+
			"Use only source material in payload.\n"+
			"Do not cite any source not present in payload.\n"+
			"Input JSON:\n%s",
		wordTarget(detail), string(payload))

	report, err := s.client.ARun(ctx, worker, llm.Job{
		InputPrompt:    prompt,
		ExpectedOutput: "Long markdown answer with source-linked citations.",
	})
	if err != nil || !report.Completed() {
		return ""
	}
	return strings.TrimSpace(report.Content)
}

// fallbackAnswer builds a deterministic snippet digest in source order,
// used when the model call fails or returns empty content.
func fallbackAnswer(query string, sources []types.AISearchSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n## Answer\n\n", query)

	limit := len(sources)
	if limit > maxFallbackLines {
		limit = maxFallbackLines
	}
	for i := 0; i < limit; i++ {
		snippet := sources[i].Snippet
		if snippet == "" {
			snippet = truncateRunes(sources[i].TextExcerpt, maxSnippetRunes-40)
		}
		if snippet == "" {
			continue
		}
		fmt.Fprintf(&b, "%s [%d]\n\n", snippet, i+1)
	}

	b.WriteString("## Sources\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s - %s\n", i+1, src.Title, src.URL)
	}
	return strings.TrimSpace(b.String())
}

func wordTarget(detail types.DetailLevel) int {
	switch detail {
	case types.DetailConcise:
		return 700
	case types.DetailHigh:
		return 2000
	default:
		return 1300
	}
}

func clampRange(v, lo, hi, def int) int {
	if v == 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
