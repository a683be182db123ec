// Package report implements ReportService.render of spec.md §4.5: it
// takes a lead agent's draft and the run's citation list and produces
// canonical markdown whose [k] markers are contiguous, resolvable, and
// free of LLM-introduced noise.
//
// Grounded on internal/obsidian's markdown post-processing helpers
// (regex-driven rewrite passes over a rendered document), generalized to
// the marker normalize/reindex/strip/filter/append pipeline of spec.md.
package report

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"deepresearch/internal/types"
)

var markerPattern = regexp.MustCompile(`\[([A-Za-z0-9_-]{1,64})\]`)
var hex32Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
var blankRunPattern = regexp.MustCompile(`\n{3,}`)
var referencesHeaderPattern = regexp.MustCompile(`(?mi)^##\s*references\s*$`)

// Render produces the canonical markdown for a research run.
func Render(req types.ResearchRequest, draft types.FinalReportDraft, citations []types.CitationEntry) string {
	markdown := sourceSelect(req, draft)
	markdown = normalizeMarkers(markdown, citations)
	markdown, reindexed := reindexToCompactRange(markdown, citations)
	markdown = stripLLMReferences(markdown)
	markdown, used := filterToUsedCitations(markdown, reindexed)
	markdown = appendReferences(markdown, used)
	return markdown
}

// sourceSelect implements spec.md §4.5 step 1.
func sourceSelect(req types.ResearchRequest, draft types.FinalReportDraft) string {
	if strings.TrimSpace(draft.Markdown) != "" {
		return draft.Markdown
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", draft.Title)
	sb.WriteString("## Executive Summary\n\n")
	sb.WriteString(draft.ExecutiveSummary)
	sb.WriteString("\n\n")
	sb.WriteString("## Research Configuration\n\n")
	fmt.Fprintf(&sb, "- Detail level: %s\n- Depth policy: %s\n- Max iterations: %d\n\n",
		req.DetailLevel, req.DepthPolicy, req.MaxIterations)
	for _, s := range draft.Sections {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", s.Heading, s.Content)
	}
	return sb.String()
}

// normalizeMarkers implements spec.md §4.5 step 2.
func normalizeMarkers(markdown string, citations []types.CitationEntry) string {
	validID := make(map[string]bool, len(citations))
	for _, c := range citations {
		validID[strconv.Itoa(c.CitationID)] = true
	}
	byEvidenceID := make(map[string]int)
	for _, c := range citations {
		for _, eid := range c.EvidenceIDs {
			byEvidenceID[eid] = c.CitationID
		}
	}

	rewritten := markerPattern.ReplaceAllStringFunc(markdown, func(match string) string {
		token := markerPattern.FindStringSubmatch(match)[1]

		if isAllDigits(token) {
			if validID[token] {
				return match
			}
			return ""
		}
		if n, ok := byEvidenceID[token]; ok {
			return fmt.Sprintf("[%d]", n)
		}
		if hex32Pattern.MatchString(token) {
			return ""
		}
		return match
	})

	return collapseAdjacentMarkers(tidyWhitespace(rewritten))
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var adjacentMarkerPattern = regexp.MustCompile(`(\[\d+\])(\s*\1)+`)

func collapseAdjacentMarkers(s string) string {
	return adjacentMarkerPattern.ReplaceAllString(s, "$1")
}

func tidyWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	return blankRunPattern.ReplaceAllString(s, "\n\n")
}

// reindexToCompactRange implements spec.md §4.5 step 3: sort citations by
// original citation_id, assign 1..N, and rewrite markers accordingly.
func reindexToCompactRange(markdown string, citations []types.CitationEntry) (string, []types.CitationEntry) {
	sorted := make([]types.CitationEntry, len(citations))
	copy(sorted, citations)
	sortByCitationID(sorted)

	remap := make(map[int]int, len(sorted))
	reindexed := make([]types.CitationEntry, len(sorted))
	for i, c := range sorted {
		remap[c.CitationID] = i + 1
		c.CitationID = i + 1
		reindexed[i] = c
	}

	markdown = rewriteNumericMarkers(markdown, remap)
	return collapseAdjacentMarkers(markdown), reindexed
}

func rewriteNumericMarkers(markdown string, remap map[int]int) string {
	return markerPattern.ReplaceAllStringFunc(markdown, func(match string) string {
		token := markerPattern.FindStringSubmatch(match)[1]
		if !isAllDigits(token) {
			return match
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			return match
		}
		newID, ok := remap[n]
		if !ok {
			return match
		}
		return fmt.Sprintf("[%d]", newID)
	})
}

func sortByCitationID(entries []types.CitationEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].CitationID > entries[j].CitationID; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// stripLLMReferences implements spec.md §4.5 step 4.
func stripLLMReferences(markdown string) string {
	loc := referencesHeaderPattern.FindStringIndex(markdown)
	if loc == nil {
		return markdown
	}
	return strings.TrimRight(markdown[:loc[0]], "\n") + "\n"
}

// filterToUsedCitations implements spec.md §4.5 step 5.
func filterToUsedCitations(markdown string, citations []types.CitationEntry) (string, []types.CitationEntry) {
	byID := make(map[int]types.CitationEntry, len(citations))
	for _, c := range citations {
		byID[c.CitationID] = c
	}

	var firstUse []int
	seenUse := make(map[int]bool)
	for _, match := range markerPattern.FindAllStringSubmatch(markdown, -1) {
		token := match[1]
		if !isAllDigits(token) {
			continue
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		if _, ok := byID[n]; !ok {
			continue
		}
		if !seenUse[n] {
			seenUse[n] = true
			firstUse = append(firstUse, n)
		}
	}

	remap := make(map[int]int, len(firstUse))
	kept := make([]types.CitationEntry, len(firstUse))
	for i, oldID := range firstUse {
		remap[oldID] = i + 1
		c := byID[oldID]
		c.CitationID = i + 1
		kept[i] = c
	}

	markdown = markerPattern.ReplaceAllStringFunc(markdown, func(match string) string {
		token := markerPattern.FindStringSubmatch(match)[1]
		if !isAllDigits(token) {
			return match
		}
		n, err := strconv.Atoi(token)
		if err != nil {
			return match
		}
		newID, ok := remap[n]
		if !ok {
			return ""
		}
		return fmt.Sprintf("[%d]", newID)
	})

	markdown = collapseAdjacentMarkers(markdown)
	markdown = strings.TrimRight(markdown, "\n") + "\n"
	return markdown, kept
}

// appendReferences implements spec.md §4.5 step 6.
func appendReferences(markdown string, citations []types.CitationEntry) string {
	if len(citations) == 0 {
		return markdown
	}
	var sb strings.Builder
	sb.WriteString(markdown)
	sb.WriteString("\n## References\n\n")
	for _, c := range citations {
		fmt.Fprintf(&sb, "[%d] %s. \"%s\". %s (accessed %s)\n", c.CitationID, c.Publisher, c.Title, c.URL, c.AccessedAt)
	}
	return sb.String()
}
