package subagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/llm"
	"deepresearch/internal/scrape"
	"deepresearch/internal/search"
	"deepresearch/internal/types"
)

type stubLLM struct {
	report llm.Report
	err    error
}

func (s stubLLM) ARun(_ context.Context, _ llm.Worker, _ llm.Job) (llm.Report, error) {
	return s.report, s.err
}

type stubProvider struct {
	hits []search.Hit
	err  error
}

func (p stubProvider) Search(_ context.Context, _ string, _ int) ([]search.Hit, error) {
	return p.hits, p.err
}

type stubScraper struct {
	pages map[string]scrape.Page
}

func (s stubScraper) ScrapeMany(_ context.Context, urls []string) ([]scrape.Page, error) {
	var out []scrape.Page
	for _, u := range urls {
		if p, ok := s.pages[u]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func baseRequest() types.ResearchRequest {
	return types.ResearchRequest{MaxResultsPerQuery: 5, MaxPagesPerTask: 3}
}

func TestExecuteTaskExtractsEvidenceFromScrapedPages(t *testing.T) {
	provider := stubProvider{hits: []search.Hit{{URL: "https://a.example", Title: "A", Snippet: "a snippet"}}}
	scraper := stubScraper{pages: map[string]scrape.Page{
		"https://a.example": {URL: "https://a.example", Title: "A", Text: "full page body"},
	}}
	payload := extractionPayload{Snippet: "short", ExtractedText: "long body", Confidence: 0.8}
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	client := stubLLM{report: llm.Report{Status: llm.StatusCompleted, Data: data}}

	agent := New(client, provider, scraper, "test-model")
	task := types.SubagentTask{TaskID: "t1", Focus: "solar panels", SearchQueries: []string{"solar panels"}}

	evidence, err := agent.ExecuteTask(context.Background(), task, baseRequest(), nil)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, "long body", evidence[0].ExtractedText)
	assert.Equal(t, 0.8, evidence[0].Confidence)
	assert.Equal(t, "t1", evidence[0].TaskID)
}

func TestExecuteTaskFallsBackToSnippetWhenScrapeMisses(t *testing.T) {
	provider := stubProvider{hits: []search.Hit{{URL: "https://missing.example", Title: "Missing", Snippet: "fallback text"}}}
	scraper := stubScraper{pages: map[string]scrape.Page{}}
	client := stubLLM{err: assert.AnError}

	agent := New(client, provider, scraper, "test-model")
	task := types.SubagentTask{TaskID: "t1", Focus: "solar panels"}

	evidence, err := agent.ExecuteTask(context.Background(), task, baseRequest(), nil)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, 0.33, evidence[0].Confidence)
	assert.Equal(t, "fallback text", evidence[0].ExtractedText)
}

func TestExecuteTaskUsesDeterministicExtractionWhenLLMFails(t *testing.T) {
	provider := stubProvider{hits: []search.Hit{{URL: "https://a.example", Title: "A"}}}
	scraper := stubScraper{pages: map[string]scrape.Page{
		"https://a.example": {URL: "https://a.example", Title: "A", Text: "some body text here"},
	}}
	client := stubLLM{err: assert.AnError}

	agent := New(client, provider, scraper, "test-model")
	task := types.SubagentTask{TaskID: "t1", Focus: "solar panels"}

	evidence, err := agent.ExecuteTask(context.Background(), task, baseRequest(), nil)
	require.NoError(t, err)
	require.Len(t, evidence, 1)
	assert.Equal(t, 0.45, evidence[0].Confidence)
	assert.Equal(t, "some body text here", evidence[0].ExtractedText)
}

func TestExecuteTaskDedupesURLsAcrossQueries(t *testing.T) {
	provider := stubProvider{hits: []search.Hit{{URL: "https://a.example", Title: "A", Snippet: "s"}}}
	scraper := stubScraper{pages: map[string]scrape.Page{}}
	client := stubLLM{err: assert.AnError}

	agent := New(client, provider, scraper, "test-model")
	task := types.SubagentTask{TaskID: "t1", Focus: "solar", SearchQueries: []string{"solar a", "solar b"}}

	evidence, err := agent.ExecuteTask(context.Background(), task, baseRequest(), nil)
	require.NoError(t, err)
	assert.Len(t, evidence, 1)
}

func TestExecuteTaskRespectsMaxPagesPerTask(t *testing.T) {
	provider := stubProvider{hits: []search.Hit{
		{URL: "https://a.example", Title: "A", Snippet: "a"},
		{URL: "https://b.example", Title: "B", Snippet: "b"},
		{URL: "https://c.example", Title: "C", Snippet: "c"},
		{URL: "https://d.example", Title: "D", Snippet: "d"},
	}}
	scraper := stubScraper{pages: map[string]scrape.Page{}}
	client := stubLLM{err: assert.AnError}

	req := baseRequest()
	req.MaxPagesPerTask = 2
	agent := New(client, provider, scraper, "test-model")
	task := types.SubagentTask{TaskID: "t1", Focus: "solar"}

	evidence, err := agent.ExecuteTask(context.Background(), task, req, nil)
	require.NoError(t, err)
	assert.Len(t, evidence, 2)
}
