// Package engine is the façade of spec.md §2: it wires the concrete LLM,
// search, scrape, and memory adapters to the CORE pipeline and exposes
// Run, RunSync, Stream, and AISearch to callers (the CLI, tests, or any
// other embedder).
//
// Grounded on internal/orchestrator/deep.go's NewDeepOrchestrator
// constructor-and-entry-point shape (wires llm.NewClient and
// tools.NewRegistry, exposes a single Research entry point), generalized
// to the spec's four-operation surface and the AsyncBridge's run/stream
// split.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"deepresearch/internal/aisearch"
	"deepresearch/internal/bridge"
	"deepresearch/internal/citation"
	"deepresearch/internal/config"
	"deepresearch/internal/cost"
	"deepresearch/internal/events"
	"deepresearch/internal/lead"
	"deepresearch/internal/llm"
	"deepresearch/internal/llmclient"
	"deepresearch/internal/memory"
	"deepresearch/internal/memory/fsstore"
	"deepresearch/internal/orchestrator"
	"deepresearch/internal/scrape"
	"deepresearch/internal/search"
	"deepresearch/internal/subagent"
	"deepresearch/internal/types"
	"deepresearch/internal/webscrape"
)

// Engine is the top-level entry point for running research.
type Engine struct {
	cfg      *config.Config
	client   llm.Client
	provider search.Provider
	scraper  scrape.Scraper
	store    memory.Store
	cost     *cost.Tracker
	bridge   *bridge.Bridge
}

// New constructs an Engine from configuration, wiring an OpenRouter LLM
// client, a Brave search provider, a multi-format page scraper, and a
// filesystem-backed memory store.
func New(cfg *config.Config) (*Engine, error) {
	costTracker := cost.New()

	store, err := fsstore.New(cfg.MemoryDir)
	if err != nil {
		return nil, fmt.Errorf("engine: init memory store: %w", err)
	}

	return &Engine{
		cfg:      cfg,
		client:   llmclient.New(cfg.OpenRouterAPIKey, cfg.RequestTimeout, costTracker),
		provider: webscrape.NewBraveProvider(cfg.BraveAPIKey),
		scraper:  webscrape.NewPageScraper(),
		store:    store,
		cost:     costTracker,
		bridge:   bridge.New(),
	}, nil
}

func (e *Engine) newOrchestrator(runID string, bus *events.Bus) *orchestrator.Orchestrator {
	mem := memory.NewService(e.store, runID)
	leadAgent := lead.New(e.client, e.cfg.Model)
	citationAgent := citation.New(e.client, e.cfg.Model)
	searchAgent := subagent.New(e.client, e.provider, e.scraper, e.cfg.Model)
	return orchestrator.New(runID, leadAgent, citationAgent, searchAgent, mem, bus, e.cost)
}

// Run executes a research request on the engine's dedicated worker loop
// and blocks until it completes, per spec.md §4.7's run(awaitable).
func (e *Engine) Run(ctx context.Context, req types.ResearchRequest) (types.ResearchRunResult, error) {
	runID := uuid.NewString()
	orch := e.newOrchestrator(runID, nil)
	return bridge.Run(e.bridge, func(loopCtx context.Context) (types.ResearchRunResult, error) {
		return orch.Run(loopCtx, req)
	})
}

// RunSync is an alias for Run: both submit the request to the engine's
// single worker loop and block for the result. It exists to name the
// spec's run_sync operation explicitly for callers that distinguish it
// from the streaming Stream operation.
func (e *Engine) RunSync(ctx context.Context, req types.ResearchRequest) (types.ResearchRunResult, error) {
	return e.Run(ctx, req)
}

// Stream executes a research request and returns a channel of progress
// events plus a wait function that blocks until the run finishes and
// returns its final result and error.
func (e *Engine) Stream(ctx context.Context, req types.ResearchRequest) (<-chan types.RunEvent, func() (types.ResearchRunResult, error)) {
	runID := uuid.NewString()
	bus := events.NewBus(32)
	orch := e.newOrchestrator(runID, bus)

	var result types.ResearchRunResult
	eventCh, wait := e.bridge.Stream(func(loopCtx context.Context, emit func(types.RunEvent)) error {
		sub := bus.SubscribeBlocking()
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range sub {
				emit(ev)
			}
		}()

		r, err := orch.Run(loopCtx, req)
		result = r
		bus.Close()
		<-done
		return err
	})

	waitResult := func() (types.ResearchRunResult, error) {
		err := wait()
		return result, err
	}
	return eventCh, waitResult
}

// AISearch answers query directly from live web sources, per spec.md
// §1/§2 item 10: search, scrape, and a single LLM call synthesize a
// markdown answer, with a deterministic snippet-digest fallback when the
// model call fails. Unlike Run/Stream, this bypasses the iteration loop
// entirely — it is a one-shot lookup, not a research run.
func (e *Engine) AISearch(ctx context.Context, query string, maxResults int) (types.AISearchResult, error) {
	req := types.ResearchRequest{MaxResultsPerQuery: maxResults, MaxPagesPerTask: maxResults}.Clamp()
	svc := aisearch.New(e.client, e.provider, e.scraper, e.cfg.Model)
	return bridge.Run(e.bridge, func(loopCtx context.Context) (types.AISearchResult, error) {
		return svc.Search(loopCtx, query, req.MaxResultsPerQuery, req.MaxPagesPerTask, req.DetailLevel), nil
	})
}

// InspectRun reads back the persisted digest of a prior run, per
// spec.md §6's "Run inspection": inspect_run(run_id) -> {exists, run_id,
// status, created_at, updated_at, input, output_json, events[]}. It is
// backed by the memory scope fallback path (no dedicated run store is
// wired): the digest is the same "run_digest" key the orchestrator
// writes as it progresses, so InspectRun reflects a run's last known
// state even if it is still in flight.
func (e *Engine) InspectRun(ctx context.Context, runID string) (types.RunDigest, error) {
	mem := memory.NewService(e.store, runID)
	var digest types.RunDigest
	ok, err := mem.ReadDigest(ctx, "run_digest", &digest)
	if err != nil {
		return types.RunDigest{}, fmt.Errorf("engine: inspect run %s: %w", runID, err)
	}
	if !ok {
		return types.RunDigest{RunID: runID}, nil
	}
	return digest, nil
}

// Shutdown stops the engine's worker loop.
func (e *Engine) Shutdown() {
	e.bridge.Shutdown()
}
