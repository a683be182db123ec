package types

import "time"

// EvidenceRecord is one URL's contribution to the run's body of evidence,
// either LLM-extracted or a degraded search-snippet fallback. Immutable
// once produced; aggregated across all iterations of a run.
type EvidenceRecord struct {
	EvidenceID     string
	TaskID         string
	Query          string
	URL            string
	Title          string
	Snippet        string
	ExtractedText  string
	Confidence     float64
	Timestamp      time.Time
}

// CitationEntry is a deduplicated, numbered bibliographic entry referenced
// by [k] markers in the rendered report. CitationID is contiguous 1..N
// after ReportService normalization; it may be sparse before that.
type CitationEntry struct {
	CitationID int
	EvidenceIDs []string
	URL         string
	Title       string
	Publisher   string
	AccessedAt  string // ISO date (YYYY-MM-DD)
}

// AISearchSource is one source backing an AISearchResult.
type AISearchSource struct {
	Title       string
	URL         string
	Snippet     string
	TextExcerpt string
}

// AISearchResult is the output of the one-shot "AI search" operation of
// spec.md §1/§2 item 10: a single markdown answer synthesized directly
// from live web sources, rather than the full plan/synthesize loop.
type AISearchResult struct {
	Query          string
	AnswerMarkdown string
	Sources        []AISearchSource
	RunStats       map[string]any
}

// FinalReportDraft is the lead agent's candidate report, consumed once by
// ReportService.Render. Markdown, when non-empty, is preferred verbatim
// over rendering from Sections.
type FinalReportDraft struct {
	Title             string
	ExecutiveSummary  string
	Sections          []ReportSection
	Markdown          string
}

// ReportSection is one heading+content block of a FinalReportDraft built
// from the deterministic fallback path.
type ReportSection struct {
	Heading string
	Content string
}
