// Package lead implements the LeadAgent of spec.md §4.1: the three
// LLM-driven operations that plan each iteration, synthesize its
// evidence, and build the final report draft, each with a deterministic
// fallback.
//
// Grounded on internal/agents/synthesis.go's outline/section generation
// (LLM call with a parsed-JSON-or-default fallback shape) and
// internal/planning/planner.go's perspective-facet cycling, generalized
// to the fixed schemas and padding rule of spec.md §4.1.
package lead

import (
	"context"
	"fmt"
	"strings"

	"deepresearch/internal/llm"
	"deepresearch/internal/types"
)

// facets is the cycling list used to pad an iteration plan up to its
// target task count, per spec.md §4.1.
var facets = []string{
	"latest developments",
	"market landscape",
	"technical details",
	"counterarguments",
	"regional data",
	"expert analysis",
	"primary-source statements",
	"case studies",
}

// fallbackFacets seeds a from-scratch plan when the LLM returns nothing.
var fallbackFacets = append([]string{"overview"}, facets...)

// Agent is the LeadAgent.
type Agent struct {
	client llm.Client
	model  string
}

// New constructs a LeadAgent.
func New(client llm.Client, model string) *Agent {
	if model == "" {
		model = llm.DefaultModel
	}
	return &Agent{client: client, model: model}
}

// planPayload is the schema the planning LLM call conforms to.
type planPayload struct {
	Goals        []string `json:"goals"`
	SubagentTasks []struct {
		TaskID         string   `json:"task_id"`
		Focus          string   `json:"focus"`
		SearchQueries  []string `json:"search_queries"`
		ExpectedOutput string   `json:"expected_output"`
	} `json:"subagent_tasks"`
	ContinueLoop bool   `json:"continue_loop"`
	StopReason   string `json:"stop_reason"`
}

// CreateIterationPlan plans the subagent tasks for one iteration.
func (a *Agent) CreateIterationPlan(ctx context.Context, req types.ResearchRequest, iterationIndex int, priorSummaries []types.IterationSynthesis, memoryContext []string) types.IterationPlan {
	worker := llm.Worker{
		Name:  "iteration-planner",
		Model: a.model,
		Instructions: "Plan the next research iteration: produce goals, a list of " +
			"independent subagent tasks (task_id, focus, search_queries, " +
			"expected_output), a continue_loop decision, and an optional stop_reason.",
	}
	prompt := buildPlanPrompt(req, iterationIndex, priorSummaries, memoryContext)

	var payload planPayload
	_, err := llm.CallStructured(ctx, a.client, worker, prompt, &payload)

	target := clamp(req.Parallelism, 1, 8)

	var tasks []types.SubagentTask
	if err == nil {
		for _, t := range payload.SubagentTasks {
			if strings.TrimSpace(t.Focus) == "" {
				continue
			}
			queries := t.SearchQueries
			if len(queries) == 0 {
				queries = []string{t.Focus}
			}
			tasks = append(tasks, types.SubagentTask{
				TaskID:         t.TaskID,
				Focus:          t.Focus,
				SearchQueries:  queries,
				ExpectedOutput: t.ExpectedOutput,
			})
		}
	}

	if len(tasks) == 0 {
		tasks = fallbackPlanTasks(req, iterationIndex, target)
	}

	tasks = dedupeTaskIDs(tasks, iterationIndex)
	tasks = padTasks(tasks, target, iterationIndex, facets)

	if err != nil {
		return types.IterationPlan{
			IterationIndex: iterationIndex,
			Goals:          []string{fmt.Sprintf("Investigate: %s", req.Query)},
			SubagentTasks:  tasks,
			ContinueLoop:   true,
		}
	}

	return types.IterationPlan{
		IterationIndex: iterationIndex,
		Goals:          payload.Goals,
		SubagentTasks:  tasks,
		ContinueLoop:   payload.ContinueLoop,
		StopReason:     payload.StopReason,
	}
}

func fallbackPlanTasks(req types.ResearchRequest, iterationIndex, target int) []types.SubagentTask {
	base := req.Query
	tasks := make([]types.SubagentTask, 0, target)
	for i := 0; i < target; i++ {
		facet := fallbackFacets[i%len(fallbackFacets)]
		focus := fmt.Sprintf("%s - %s", base, facet)
		tasks = append(tasks, types.SubagentTask{
			TaskID:        fmt.Sprintf("iter_%d_task_%d", iterationIndex+1, i+1),
			Focus:         focus,
			SearchQueries: []string{fmt.Sprintf("%s %s", req.Query, facet), base},
		})
	}
	return tasks
}

func dedupeTaskIDs(tasks []types.SubagentTask, iterationIndex int) []types.SubagentTask {
	seen := make(map[string]bool, len(tasks))
	for i := range tasks {
		id := tasks[i].TaskID
		if id == "" || seen[id] {
			tasks[i].TaskID = fmt.Sprintf("iter_%d_task_%d", iterationIndex+1, i+1)
		}
		seen[tasks[i].TaskID] = true
	}
	return tasks
}

func padTasks(tasks []types.SubagentTask, target, iterationIndex int, facetList []string) []types.SubagentTask {
	if len(tasks) == 0 || target <= len(tasks) {
		return tasks
	}
	base := tasks[0].Focus
	for i := len(tasks); i < target; i++ {
		facet := facetList[i%len(facetList)]
		tasks = append(tasks, types.SubagentTask{
			TaskID:        fmt.Sprintf("iter_%d_task_%d", iterationIndex+1, i+1),
			Focus:         fmt.Sprintf("%s - %s", base, facet),
			SearchQueries: []string{fmt.Sprintf("%s %s", base, facet), base},
		})
	}
	return tasks
}

func buildPlanPrompt(req types.ResearchRequest, iterationIndex int, priorSummaries []types.IterationSynthesis, memoryContext []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\nIteration: %d of %d\n\n", req.Query, iterationIndex+1, req.MaxIterations)
	if len(priorSummaries) > 0 {
		sb.WriteString("Prior iteration summaries:\n")
		for i, s := range priorSummaries {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Summary)
		}
		sb.WriteString("\n")
	}
	if len(memoryContext) > 0 {
		sb.WriteString("Relevant memory entries:\n")
		for _, m := range memoryContext {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}
	return sb.String()
}

// synthesisPayload is the schema the synthesis LLM call conforms to.
type synthesisPayload struct {
	Summary       string   `json:"summary"`
	KeyFindings   []string `json:"key_findings"`
	OpenQuestions []string `json:"open_questions"`
	ContinueLoop  bool     `json:"continue_loop"`
	StopReason    string   `json:"stop_reason"`
}

// SynthesizeIteration folds one iteration's evidence into a summary and
// a continue/stop decision.
func (a *Agent) SynthesizeIteration(ctx context.Context, req types.ResearchRequest, iterationIndex int, iterationEvidence []types.EvidenceRecord, priorSummaries []types.IterationSynthesis) types.IterationSynthesis {
	worker := llm.Worker{
		Name:  "iteration-synthesizer",
		Model: a.model,
		Instructions: "Summarize this iteration's evidence into a short summary, " +
			"key findings, open questions, and a continue_loop decision with an " +
			"optional stop_reason.",
	}
	prompt := buildSynthesisPrompt(req, iterationIndex, iterationEvidence, priorSummaries)

	var payload synthesisPayload
	_, err := llm.CallStructured(ctx, a.client, worker, prompt, &payload)
	if err != nil {
		return fallbackSynthesis(req, iterationIndex, iterationEvidence)
	}

	return types.IterationSynthesis{
		Summary:       payload.Summary,
		KeyFindings:   payload.KeyFindings,
		OpenQuestions: payload.OpenQuestions,
		ContinueLoop:  payload.ContinueLoop,
		StopReason:    payload.StopReason,
	}
}

func fallbackSynthesis(req types.ResearchRequest, iterationIndex int, evidence []types.EvidenceRecord) types.IterationSynthesis {
	findings := make([]string, 0, 5)
	for i, e := range evidence {
		if i >= 5 {
			break
		}
		findings = append(findings, e.Snippet)
	}

	continueLoop := iterationIndex+1 < req.MaxIterations && len(evidence) > 0
	var stopReason string
	if !continueLoop {
		stopReason = "Iteration budget reached"
	}

	return types.IterationSynthesis{
		Summary:      "No structured synthesis available; using deterministic fallback.",
		KeyFindings:  findings,
		ContinueLoop: continueLoop,
		StopReason:   stopReason,
	}
}

func buildSynthesisPrompt(req types.ResearchRequest, iterationIndex int, evidence []types.EvidenceRecord, priorSummaries []types.IterationSynthesis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\nIteration: %d of %d\nEvidence gathered: %d records\n\n", req.Query, iterationIndex+1, req.MaxIterations, len(evidence))
	for i, e := range evidence {
		if i >= 40 {
			fmt.Fprintf(&sb, "...and %d more\n", len(evidence)-i)
			break
		}
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", e.URL, e.Title, truncate(e.Snippet, 240))
	}
	if len(priorSummaries) > 0 {
		sb.WriteString("\nPrior summaries:\n")
		for _, s := range priorSummaries {
			fmt.Fprintf(&sb, "- %s\n", s.Summary)
		}
	}
	return sb.String()
}

// reportPayload is the schema the final-report LLM call conforms to.
type reportPayload struct {
	Markdown string `json:"markdown"`
}

// BuildFinalReport produces the final report draft from all iteration
// summaries, the aggregated evidence, and the built citation list.
func (a *Agent) BuildFinalReport(ctx context.Context, req types.ResearchRequest, iterationSummaries []types.IterationSynthesis, evidence []types.EvidenceRecord, citations []types.CitationEntry) types.FinalReportDraft {
	target := req.WordTarget()
	worker := llm.Worker{
		Name:  "final-report-writer",
		Model: a.model,
		Instructions: fmt.Sprintf(
			"Write a markdown research report with the exact section headers "+
				"'# <Title>', '## Executive Summary', '## Key Findings', "+
				"'## Detailed Analysis', '## Risks and Counterpoints', "+
				"'## Open Questions', '## References', using [1],[2],... citation "+
				"markers tied to the numbered reference list. Target at least %d words.",
			target),
	}
	prompt := buildReportPrompt(req, iterationSummaries, evidence, citations, target)

	var payload reportPayload
	_, err := llm.CallStructured(ctx, a.client, worker, prompt, &payload)
	if err != nil || strings.TrimSpace(payload.Markdown) == "" {
		return fallbackReport(req, iterationSummaries, evidence, citations)
	}

	title, summary := parseTitleAndSummary(payload.Markdown)
	return types.FinalReportDraft{
		Title:            title,
		ExecutiveSummary: summary,
		Markdown:         payload.Markdown,
	}
}

func buildReportPrompt(req types.ResearchRequest, summaries []types.IterationSynthesis, evidence []types.EvidenceRecord, citations []types.CitationEntry, target int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\nMinimum word count: %d\n\n", req.Query, target)
	sb.WriteString("Iteration summaries:\n")
	for i, s := range summaries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Summary)
	}
	sb.WriteString("\nEvidence excerpts:\n")
	for i, e := range evidence {
		if i >= 60 {
			fmt.Fprintf(&sb, "...and %d more\n", len(evidence)-i)
			break
		}
		fmt.Fprintf(&sb, "- %s\n", truncate(e.ExtractedText, 400))
	}
	sb.WriteString("\nCitation list:\n")
	for _, c := range citations {
		fmt.Fprintf(&sb, "[%d] %s (%s)\n", c.CitationID, c.Title, c.URL)
	}
	return sb.String()
}

// fallbackReport builds a deterministic multi-section draft when the LLM
// call fails, per spec.md §4.1.
func fallbackReport(req types.ResearchRequest, summaries []types.IterationSynthesis, evidence []types.EvidenceRecord, citations []types.CitationEntry) types.FinalReportDraft {
	title := req.Query

	var execSummary strings.Builder
	for i, s := range summaries {
		if i > 0 {
			execSummary.WriteString(" ")
		}
		execSummary.WriteString(s.Summary)
	}
	if execSummary.Len() == 0 {
		execSummary.WriteString("No structured synthesis available; using deterministic fallback.")
	}

	var findings []string
	for _, s := range summaries {
		findings = append(findings, s.KeyFindings...)
	}

	var analysis strings.Builder
	for i, e := range evidence {
		if i >= 30 {
			break
		}
		if e.EvidenceID == "" {
			fmt.Fprintf(&analysis, "- %s\n", truncate(e.ExtractedText, 280))
			continue
		}
		// The evidence-ID marker is resolved to its citation number by
		// ReportService, so the rendered report keeps its references.
		fmt.Fprintf(&analysis, "- %s [%s]\n", truncate(e.ExtractedText, 280), e.EvidenceID)
	}

	var openQuestions []string
	for _, s := range summaries {
		openQuestions = append(openQuestions, s.OpenQuestions...)
	}

	sections := []types.ReportSection{
		{Heading: "Executive Summary", Content: execSummary.String()},
		{Heading: "Key Findings", Content: bulletList(findings)},
		{Heading: "Detailed Analysis", Content: analysis.String()},
		{Heading: "Risks and Counterpoints", Content: "Not enough structured analysis was available to separate risks from findings."},
		{Heading: "Open Questions", Content: bulletList(openQuestions)},
		{Heading: "References", Content: referencesList(citations)},
	}

	return types.FinalReportDraft{
		Title:            title,
		ExecutiveSummary: execSummary.String(),
		Sections:         sections,
	}
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "None identified."
	}
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "- %s\n", it)
	}
	return sb.String()
}

func referencesList(citations []types.CitationEntry) string {
	if len(citations) == 0 {
		return "None."
	}
	var sb strings.Builder
	for _, c := range citations {
		fmt.Fprintf(&sb, "%d. %s - %s\n", c.CitationID, c.Title, c.URL)
	}
	return sb.String()
}

// parseTitleAndSummary extracts the title (first "# " line) and executive
// summary (paragraphs following "## Executive Summary" up to the next
// "## " header or ~120 words) from a markdown report.
func parseTitleAndSummary(markdown string) (title, summary string) {
	lines := strings.Split(markdown, "\n")
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "# ") && !strings.HasPrefix(trimmed, "## ") {
			title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			break
		}
	}

	startIdx := -1
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "## Executive Summary") {
			startIdx = i + 1
			break
		}
	}
	if startIdx < 0 {
		return title, summary
	}

	var words []string
	for i := startIdx; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "## ") {
			break
		}
		for _, w := range strings.Fields(trimmed) {
			words = append(words, w)
			if len(words) >= 120 {
				return title, strings.Join(words, " ")
			}
		}
	}
	return title, strings.Join(words, " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
