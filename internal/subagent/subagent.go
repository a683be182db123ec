// Package subagent implements the SearchSubagent of spec.md §4.2: given a
// SubagentTask it queries the search provider, scrapes the top URLs, asks
// the LLM to extract structured evidence from each page, and degrades to
// snippet-only evidence when scraping fails.
//
// Grounded on internal/agents/search.go's SearchAgent.Search (iterative
// gap-driven search), generalized here to the spec's fixed
// query->scrape->extract->fallback pipeline with a typed Emitter instead
// of an event bus callback.
package subagent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deepresearch/internal/llm"
	"deepresearch/internal/scrape"
	"deepresearch/internal/search"
	"deepresearch/internal/types"
)

// SearchSubagent executes a single SubagentTask for a run.
type SearchSubagent struct {
	client   llm.Client
	provider search.Provider
	scraper  scrape.Scraper
	model    string
}

// New constructs a SearchSubagent.
func New(client llm.Client, provider search.Provider, scraper scrape.Scraper, model string) *SearchSubagent {
	if model == "" {
		model = llm.DefaultModel
	}
	return &SearchSubagent{client: client, provider: provider, scraper: scraper, model: model}
}

// extractionPayload is the schema the LLM extractor is asked to conform
// to, per spec.md §4.2 step 3.
type extractionPayload struct {
	Snippet       string  `json:"snippet"`
	ExtractedText string  `json:"extracted_text"`
	Confidence    float64 `json:"confidence"`
}

// ExecuteTask runs the full pipeline for one task and returns the
// evidence it gathered. It never returns a partial-and-error result: any
// error returned here means the orchestrator must count this task toward
// task_errors and exclude it entirely from iteration_evidence, per
// spec.md §4.3 step 3 / §7.
func (s *SearchSubagent) ExecuteTask(ctx context.Context, task types.SubagentTask, req types.ResearchRequest, emitter Emitter) ([]types.EvidenceRecord, error) {
	queries := task.SearchQueries
	if len(queries) == 0 {
		queries = []string{task.Focus}
	}

	hits, err := s.runQueries(ctx, task, req, queries, emitter)
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(hits))
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	if len(urls) > req.MaxPagesPerTask {
		urls = urls[:req.MaxPagesPerTask]
	}

	pages, err := s.scrapePages(ctx, task, urls, emitter)
	if err != nil {
		return nil, err
	}

	evidence := make([]types.EvidenceRecord, 0, len(urls))
	scrapedByURL := make(map[string]scrape.Page, len(pages))
	for _, p := range pages {
		scrapedByURL[p.URL] = p
	}

	for _, url := range urls {
		page, ok := scrapedByURL[url]
		if !ok {
			continue
		}
		rec, err := s.extractEvidence(ctx, task, page, emitter)
		if err != nil {
			// extraction failure degrades to the deterministic extractor
			// fallback inside extractEvidence itself; reaching here would
			// mean a programming error, not an LLM failure, so surface it.
			return nil, err
		}
		evidence = append(evidence, rec)
	}

	// Fallback evidence for requested URLs that were never scraped.
	hitByURL := make(map[string]search.Hit, len(hits))
	for _, h := range hits {
		hitByURL[h.URL] = h
	}
	for _, url := range urls {
		if _, ok := scrapedByURL[url]; ok {
			continue
		}
		hit := hitByURL[url]
		snippet := hit.Snippet
		if snippet == "" {
			snippet = hit.Title
		}
		rec := types.EvidenceRecord{
			EvidenceID:    uuid.NewString(),
			TaskID:        task.TaskID,
			Query:         task.Focus,
			URL:           url,
			Title:         hit.Title,
			Snippet:       snippet,
			ExtractedText: snippet,
			Confidence:    0.33,
			Timestamp:     time.Now(),
		}
		evidence = append(evidence, rec)
		emit(emitter, TraceFallbackEvidence, map[string]any{
			"task_id": task.TaskID,
			"url":     url,
		})
	}

	return evidence, nil
}

func (s *SearchSubagent) runQueries(ctx context.Context, task types.SubagentTask, req types.ResearchRequest, queries []string, emitter Emitter) ([]search.Hit, error) {
	seen := make(map[string]bool)
	var merged []search.Hit

	for _, q := range queries {
		emit(emitter, TraceQueryStarted, map[string]any{
			"task_id":     task.TaskID,
			"focus":       task.Focus,
			"query":       q,
			"max_results": req.MaxResultsPerQuery,
		})

		hits, err := s.provider.Search(ctx, q, req.MaxResultsPerQuery)
		if err != nil {
			hits = nil
		}

		urlPreview := make([]string, 0, len(hits))
		for i, h := range hits {
			if i >= 8 {
				break
			}
			urlPreview = append(urlPreview, h.URL)
		}
		emit(emitter, TraceQueryCompleted, map[string]any{
			"task_id": task.TaskID,
			"query":   q,
			"hits":    len(hits),
			"urls":    urlPreview,
		})

		for _, h := range hits {
			if h.URL == "" || seen[h.URL] {
				continue
			}
			seen[h.URL] = true
			merged = append(merged, h)
		}

		if err := ctx.Err(); err != nil {
			return merged, err
		}
	}

	return merged, nil
}

func (s *SearchSubagent) scrapePages(ctx context.Context, task types.SubagentTask, urls []string, emitter Emitter) ([]scrape.Page, error) {
	emit(emitter, TraceScrapeStarted, map[string]any{
		"task_id":   task.TaskID,
		"url_count": len(urls),
		"urls":      urls,
	})

	pages, err := s.scraper.ScrapeMany(ctx, urls)
	if err != nil {
		pages = nil
	}

	missed := len(urls) - len(pages)
	if missed < 0 {
		missed = 0
	}
	emit(emitter, TraceScrapeCompleted, map[string]any{
		"task_id": task.TaskID,
		"scraped": len(pages),
		"missed":  missed,
		"urls":    urls,
	})

	return pages, ctx.Err()
}

func (s *SearchSubagent) extractEvidence(ctx context.Context, task types.SubagentTask, page scrape.Page, emitter Emitter) (types.EvidenceRecord, error) {
	emit(emitter, TraceExtractStarted, map[string]any{
		"task_id": task.TaskID,
		"url":     page.URL,
	})

	payload := s.extract(ctx, page)

	emit(emitter, TraceExtractComplete, map[string]any{
		"task_id":    task.TaskID,
		"url":        page.URL,
		"confidence": payload.Confidence,
	})

	return types.EvidenceRecord{
		EvidenceID:    uuid.NewString(),
		TaskID:        task.TaskID,
		Query:         task.Focus,
		URL:           page.URL,
		Title:         page.Title,
		Snippet:       payload.Snippet,
		ExtractedText: payload.ExtractedText,
		Confidence:    payload.Confidence,
		Timestamp:     time.Now(),
	}, nil
}

// extract asks the LLM to produce {snippet, extracted_text, confidence}
// for a page, falling back to a deterministic truncation on any LLM
// failure, per spec.md §4.2 step 5.
func (s *SearchSubagent) extract(ctx context.Context, page scrape.Page) extractionPayload {
	worker := llm.Worker{
		Name:  "evidence-extractor",
		Model: s.model,
		Instructions: "Extract a short snippet, the most relevant body text, and a " +
			"confidence score in [0,1] describing how well this page supports " +
			"the research focus.",
	}
	prompt := fmt.Sprintf("URL: %s\nTitle: %s\n\nContent:\n%s", page.URL, page.Title, truncate(page.Text, 6000))

	var out extractionPayload
	_, err := llm.CallStructured(ctx, s.client, worker, prompt, &out)
	if err != nil {
		return deterministicExtraction(page)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		out.Confidence = 0.45
	}
	return out
}

func deterministicExtraction(page scrape.Page) extractionPayload {
	text := page.Text
	if text == "" {
		text = page.Title
	}
	return extractionPayload{
		Snippet:       truncate(text, 320),
		ExtractedText: truncate(text, 2200),
		Confidence:    0.45,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
