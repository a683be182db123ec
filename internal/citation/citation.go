// Package citation implements the CitationAgent of spec.md §4.4: turns
// the raw evidence gathered across a run into a deduplicated, numbered
// bibliography, asking the LLM for a candidate bundle and normalizing it
// against the actual evidence, with a deterministic group-by-URL
// fallback.
//
// Grounded on internal/agents/synthesis.go's extractCitations (group
// sources into sequential Citation entries) and internal/lead's
// schema-call pattern.
package citation

import (
	"context"
	"net/url"
	"strings"
	"time"

	"deepresearch/internal/llm"
	"deepresearch/internal/types"
)

// Agent is the CitationAgent.
type Agent struct {
	client llm.Client
	model  string
	today  func() string
}

// New constructs a CitationAgent. today defaults to the current date in
// ISO form; tests may override it for determinism.
func New(client llm.Client, model string) *Agent {
	if model == "" {
		model = llm.DefaultModel
	}
	return &Agent{
		client: client,
		model:  model,
		today:  func() string { return time.Now().UTC().Format("2006-01-02") },
	}
}

type citationCandidate struct {
	EvidenceIDs []string `json:"evidence_ids"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Publisher   string   `json:"publisher"`
}

type citationBundle struct {
	Citations []citationCandidate `json:"citations"`
}

// BuildCitations produces the final citation list for a run's evidence.
func (a *Agent) BuildCitations(ctx context.Context, query string, evidence []types.EvidenceRecord) []types.CitationEntry {
	byURL := make(map[string][]string)
	var urlOrder []string
	for _, e := range evidence {
		if e.URL == "" {
			continue
		}
		if _, ok := byURL[e.URL]; !ok {
			urlOrder = append(urlOrder, e.URL)
		}
		byURL[e.URL] = append(byURL[e.URL], e.EvidenceID)
	}

	worker := llm.Worker{
		Name:  "citation-builder",
		Model: a.model,
		Instructions: "Given the research query and gathered evidence, produce a " +
			"citation bundle: a list of {evidence_ids, url, title, publisher} " +
			"covering every distinct source URL.",
	}
	prompt := buildCitationPrompt(query, evidence)

	var bundle citationBundle
	_, err := llm.CallStructured(ctx, a.client, worker, prompt, &bundle)
	if err == nil {
		if entries := a.normalize(bundle.Citations, byURL); len(entries) > 0 {
			return entries
		}
	}

	return a.fallback(evidence, urlOrder, byURL)
}

func (a *Agent) normalize(candidates []citationCandidate, byURL map[string][]string) []types.CitationEntry {
	seen := make(map[string]bool)
	var entries []types.CitationEntry
	nextID := 1

	for _, c := range candidates {
		u := strings.TrimSpace(c.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		ids := c.EvidenceIDs
		if known, ok := byURL[u]; ok {
			ids = known
		}

		publisher := strings.TrimSpace(c.Publisher)
		if publisher == "" {
			publisher = hostOf(u)
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = "Untitled"
		}

		entries = append(entries, types.CitationEntry{
			CitationID:  nextID,
			EvidenceIDs: ids,
			URL:         u,
			Title:       title,
			Publisher:   publisher,
			AccessedAt:  a.today(),
		})
		nextID++
	}

	return entries
}

func (a *Agent) fallback(evidence []types.EvidenceRecord, urlOrder []string, byURL map[string][]string) []types.CitationEntry {
	firstRecord := make(map[string]types.EvidenceRecord, len(urlOrder))
	for _, e := range evidence {
		if e.URL == "" {
			continue
		}
		if _, ok := firstRecord[e.URL]; !ok {
			firstRecord[e.URL] = e
		}
	}

	entries := make([]types.CitationEntry, 0, len(urlOrder))
	for i, u := range urlOrder {
		rec := firstRecord[u]
		title := rec.Title
		if title == "" {
			title = "Untitled"
		}
		publisher := hostOf(u)
		if publisher == "" {
			publisher = "unknown"
		}
		entries = append(entries, types.CitationEntry{
			CitationID:  i + 1,
			EvidenceIDs: byURL[u],
			URL:         u,
			Title:       title,
			Publisher:   publisher,
			AccessedAt:  a.today(),
		})
	}
	return entries
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}

func buildCitationPrompt(query string, evidence []types.EvidenceRecord) string {
	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nEvidence:\n")
	for _, e := range evidence {
		sb.WriteString("- evidence_id=")
		sb.WriteString(e.EvidenceID)
		sb.WriteString(" url=")
		sb.WriteString(e.URL)
		sb.WriteString(" title=")
		sb.WriteString(e.Title)
		sb.WriteString("\n")
	}
	return sb.String()
}
