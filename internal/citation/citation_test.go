package citation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/llm"
	"deepresearch/internal/types"
)

type stubClient struct {
	report llm.Report
	err    error
}

func (s stubClient) ARun(_ context.Context, _ llm.Worker, _ llm.Job) (llm.Report, error) {
	return s.report, s.err
}

func fixedToday(agent *Agent) {
	agent.today = func() string { return "2026-07-31" }
}

func sampleEvidence() []types.EvidenceRecord {
	return []types.EvidenceRecord{
		{EvidenceID: "ev-1", URL: "https://a.example/x", Title: "A Title"},
		{EvidenceID: "ev-2", URL: "https://a.example/x", Title: "A Title"},
		{EvidenceID: "ev-3", URL: "https://b.example/y", Title: "B Title"},
	}
}

func TestBuildCitationsNormalizesLLMBundle(t *testing.T) {
	bundle := citationBundle{Citations: []citationCandidate{
		{EvidenceIDs: []string{"ev-1", "ev-2"}, URL: "https://a.example/x", Title: "A Title", Publisher: "A Pub"},
		{EvidenceIDs: []string{"ev-3"}, URL: "https://b.example/y", Title: "", Publisher: ""},
	}}
	data, err := json.Marshal(bundle)
	require.NoError(t, err)

	client := stubClient{report: llm.Report{Status: llm.StatusCompleted, Data: data}}
	agent := New(client, "test-model")
	fixedToday(agent)

	entries := agent.BuildCitations(context.Background(), "q", sampleEvidence())

	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].CitationID)
	assert.ElementsMatch(t, []string{"ev-1", "ev-2"}, entries[0].EvidenceIDs)
	assert.Equal(t, "A Pub", entries[0].Publisher)
	assert.Equal(t, 2, entries[1].CitationID)
	assert.Equal(t, "Untitled", entries[1].Title)
	assert.Equal(t, "b.example", entries[1].Publisher)
	assert.Equal(t, "2026-07-31", entries[1].AccessedAt)
}

func TestBuildCitationsFallsBackWhenLLMFails(t *testing.T) {
	client := stubClient{err: assert.AnError}
	agent := New(client, "test-model")
	fixedToday(agent)

	entries := agent.BuildCitations(context.Background(), "q", sampleEvidence())

	require.Len(t, entries, 2)
	assert.Equal(t, "https://a.example/x", entries[0].URL)
	assert.ElementsMatch(t, []string{"ev-1", "ev-2"}, entries[0].EvidenceIDs)
	assert.Equal(t, "https://b.example/y", entries[1].URL)
	assert.Equal(t, []string{"ev-3"}, entries[1].EvidenceIDs)
}

func TestBuildCitationsFallsBackOnEmptyBundle(t *testing.T) {
	data, err := json.Marshal(citationBundle{})
	require.NoError(t, err)
	client := stubClient{report: llm.Report{Status: llm.StatusCompleted, Data: data}}
	agent := New(client, "test-model")
	fixedToday(agent)

	entries := agent.BuildCitations(context.Background(), "q", sampleEvidence())

	require.Len(t, entries, 2)
}

func TestBuildCitationsSkipsEvidenceWithoutURL(t *testing.T) {
	client := stubClient{err: assert.AnError}
	agent := New(client, "test-model")
	fixedToday(agent)

	evidence := []types.EvidenceRecord{{EvidenceID: "ev-1", URL: ""}}
	entries := agent.BuildCitations(context.Background(), "q", evidence)

	assert.Empty(t, entries)
}
