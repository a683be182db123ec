package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/citation"
	"deepresearch/internal/cost"
	"deepresearch/internal/events"
	"deepresearch/internal/lead"
	"deepresearch/internal/llm"
	"deepresearch/internal/memory"
	"deepresearch/internal/scrape"
	"deepresearch/internal/search"
	"deepresearch/internal/subagent"
	"deepresearch/internal/types"
)

// failingClient always errors, exercising every agent's deterministic
// fallback path end to end through the orchestrator.
type failingClient struct{}

func (failingClient) ARun(_ context.Context, _ llm.Worker, _ llm.Job) (llm.Report, error) {
	return llm.Report{Status: llm.StatusFailed}, assert.AnError
}

type fakeProvider struct{}

func (fakeProvider) Search(_ context.Context, query string, _ int) ([]search.Hit, error) {
	return []search.Hit{{URL: "https://source.example/" + query, Title: "Title for " + query, Snippet: "snippet"}}, nil
}

type fakeScraper struct{}

func (fakeScraper) ScrapeMany(_ context.Context, urls []string) ([]scrape.Page, error) {
	pages := make([]scrape.Page, 0, len(urls))
	for _, u := range urls {
		pages = append(pages, scrape.Page{URL: u, Title: "Page", Text: "some useful body text about the topic"})
	}
	return pages, nil
}

// fakeStore guards its map with a mutex, since memory.Store implementations
// must be safe for the fan-out's concurrent writes.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string]map[string]string)} }

func (f *fakeStore) Write(_ context.Context, scope, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[scope] == nil {
		f.data[scope] = make(map[string]string)
	}
	f.data[scope][key] = value
	return nil
}

func (f *fakeStore) Read(_ context.Context, scope, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[scope][key]
	return v, ok, nil
}

func (f *fakeStore) Search(_ context.Context, scope, needle string) ([]memory.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []memory.Entry
	for k, v := range f.data[scope] {
		out = append(out, memory.Entry{Key: k, Value: v})
	}
	_ = needle
	return out, nil
}

func (f *fakeStore) Reset(_ context.Context, scope string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, scope)
	return nil
}

func newTestOrchestrator(bus *events.Bus) *Orchestrator {
	client := failingClient{}
	leadAgent := lead.New(client, "test-model")
	citationAgent := citation.New(client, "test-model")
	searchAgent := subagent.New(client, fakeProvider{}, fakeScraper{}, "test-model")
	mem := memory.NewService(newFakeStore(), "run-test")
	return New("run-test", leadAgent, citationAgent, searchAgent, mem, bus, cost.New())
}

func TestRunCompletesAllIterationsUnderFixedDepthPolicy(t *testing.T) {
	orch := newTestOrchestrator(nil)
	req := types.ResearchRequest{
		Query:         "solar panel recycling",
		MaxIterations: 2,
		Parallelism:   2,
		DepthPolicy:   types.DepthFixed,
	}

	result, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, result.RunStats.Iterations)
	assert.NotEmpty(t, result.Evidence)
	assert.NotEmpty(t, result.Citations)
	assert.Contains(t, result.ReportMarkdown, "## References")
}

func TestRunStopsEarlyUnderAdaptiveDepthPolicyAtIterationBudget(t *testing.T) {
	orch := newTestOrchestrator(nil)
	req := types.ResearchRequest{
		Query:         "solar panel recycling",
		MaxIterations: 3,
		Parallelism:   2,
		DepthPolicy:   types.DepthAdaptive,
	}

	result, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.LessOrEqual(t, result.RunStats.Iterations, 3)
	assert.NotEmpty(t, result.Citations)
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	bus := events.NewBus(64)
	sub := bus.Subscribe()
	orch := newTestOrchestrator(bus)

	req := types.ResearchRequest{Query: "q", MaxIterations: 1, Parallelism: 1, DepthPolicy: types.DepthFixed}
	_, err := orch.Run(context.Background(), req)
	require.NoError(t, err)
	bus.Close()

	var stages []types.Stage
	for ev := range sub {
		stages = append(stages, ev.Stage)
	}

	assert.Contains(t, stages, types.StageBootstrap)
	assert.Contains(t, stages, types.StagePlan)
	assert.Contains(t, stages, types.StageCite)
	assert.Contains(t, stages, types.StageReport)
	assert.Contains(t, stages, types.StageComplete)
}

// sleepingProvider simulates a uniform-duration search call, used to
// exercise the bounded-parallelism property of spec.md §8: at
// parallelism P over N >= P uniform-sleep tasks, wall time must scale
// with ceil(N/P), not N.
type sleepingProvider struct {
	delay time.Duration
}

func (p sleepingProvider) Search(_ context.Context, query string, _ int) ([]search.Hit, error) {
	time.Sleep(p.delay)
	return []search.Hit{{URL: "https://source.example/" + query, Title: "Title", Snippet: "snippet"}}, nil
}

func newFanOutOrchestrator(delay time.Duration) *Orchestrator {
	client := failingClient{}
	leadAgent := lead.New(client, "test-model")
	citationAgent := citation.New(client, "test-model")
	searchAgent := subagent.New(client, sleepingProvider{delay: delay}, fakeScraper{}, "test-model")
	mem := memory.NewService(newFakeStore(), "run-test")
	return New("run-test", leadAgent, citationAgent, searchAgent, mem, nil, cost.New())
}

func uniformSleepTasks(n int) []types.SubagentTask {
	tasks := make([]types.SubagentTask, n)
	for i := range tasks {
		tasks[i] = types.SubagentTask{
			TaskID:        fmt.Sprintf("task-%d", i),
			Focus:         "x",
			SearchQueries: []string{fmt.Sprintf("q-%d", i)},
		}
	}
	return tasks
}

func TestFanOutWallTimeAtP2IsUnderThreeQuartersOfP1(t *testing.T) {
	const delay = 40 * time.Millisecond
	const n = 4
	tasks := uniformSleepTasks(n)

	reqP1 := types.ResearchRequest{Parallelism: 1, MaxPagesPerTask: 1}
	var callsP1 int64
	start := time.Now()
	newFanOutOrchestrator(delay).fanOut(context.Background(), 0, tasks, reqP1, &callsP1)
	p1Elapsed := time.Since(start)

	reqP2 := types.ResearchRequest{Parallelism: 2, MaxPagesPerTask: 1}
	var callsP2 int64
	start = time.Now()
	newFanOutOrchestrator(delay).fanOut(context.Background(), 0, tasks, reqP2, &callsP2)
	p2Elapsed := time.Since(start)

	assert.Less(t, p2Elapsed, time.Duration(float64(p1Elapsed)*0.75))
}

func TestFanOutWallTimeRespectsCeilNOverPBound(t *testing.T) {
	const delay = 30 * time.Millisecond
	const n = 5
	const parallelism = 2
	tasks := uniformSleepTasks(n)
	req := types.ResearchRequest{Parallelism: parallelism, MaxPagesPerTask: 1}

	var calls int64
	start := time.Now()
	newFanOutOrchestrator(delay).fanOut(context.Background(), 0, tasks, req, &calls)
	elapsed := time.Since(start)

	bound := time.Duration((n+parallelism-1)/parallelism) * delay
	assert.LessOrEqual(t, elapsed, bound+200*time.Millisecond)
}

func TestRunPersistsAnInspectableDigest(t *testing.T) {
	store := newFakeStore()
	client := failingClient{}
	leadAgent := lead.New(client, "test-model")
	citationAgent := citation.New(client, "test-model")
	searchAgent := subagent.New(client, fakeProvider{}, fakeScraper{}, "test-model")
	mem := memory.NewService(store, "run-digest-test")
	orch := New("run-digest-test", leadAgent, citationAgent, searchAgent, mem, nil, cost.New())

	req := types.ResearchRequest{Query: "q", MaxIterations: 1, Parallelism: 1, DepthPolicy: types.DepthFixed}
	result, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	var digest types.RunDigest
	ok, err := mem.ReadDigest(context.Background(), "run_digest", &digest)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, digest.Exists)
	assert.Equal(t, "run-digest-test", digest.RunID)
	assert.Equal(t, "completed", digest.Status)
	assert.Equal(t, "q", digest.Input.Query)
	assert.False(t, digest.CreatedAt.IsZero())
	assert.False(t, digest.UpdatedAt.IsZero())
	assert.Contains(t, digest.OutputJSON, result.RunID)
	assert.NotEmpty(t, digest.Events)
	assert.Equal(t, types.StageBootstrap, digest.Events[0].Stage)
}

func TestRunRecordsRunStatsMatchingEvidenceAndCitations(t *testing.T) {
	orch := newTestOrchestrator(nil)
	req := types.ResearchRequest{Query: "q", MaxIterations: 1, Parallelism: 2, DepthPolicy: types.DepthFixed}

	result, err := orch.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, len(result.Evidence), result.RunStats.EvidenceCount)
	assert.Equal(t, len(result.Citations), result.RunStats.CitationCount)
}
