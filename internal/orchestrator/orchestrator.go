// Package orchestrator implements the LeadOrchestrator of spec.md §4.3:
// the bootstrap -> (plan -> search* -> synthesize){1..max_iterations} ->
// cite -> report -> complete state machine that drives one research run.
//
// Grounded on internal/orchestrator/pool.go's WorkerPool (bounded
// concurrent fan-out over a task slice) and internal/agents/supervisor.go's
// executeParallelResearch (per-task progress events bracketing a
// concurrent dispatch), generalized from a hand-rolled channel semaphore
// to golang.org/x/sync/semaphore.Weighted and from a fixed SearchAgent
// loop to the spec's plan/search/synthesize iteration contract.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"deepresearch/internal/citation"
	"deepresearch/internal/cost"
	"deepresearch/internal/events"
	"deepresearch/internal/lead"
	"deepresearch/internal/memory"
	"deepresearch/internal/report"
	"deepresearch/internal/subagent"
	"deepresearch/internal/types"
)

// Orchestrator is the LeadOrchestrator. One Orchestrator is constructed
// per run (see internal/engine), so its mutable fields (eventLog) never
// outlive a single Run call.
type Orchestrator struct {
	lead     *lead.Agent
	citation *citation.Agent
	search   *subagent.SearchSubagent
	mem      *memory.Service
	bus      *events.Bus
	cost     *cost.Tracker
	runID    string

	logMu    sync.Mutex
	eventLog []types.RunEvent
}

// New constructs an Orchestrator for one run. mem is already scoped to
// run:{runID} (see memory.NewService); bus and costTracker may be nil.
func New(runID string, leadAgent *lead.Agent, citationAgent *citation.Agent, searchAgent *subagent.SearchSubagent, mem *memory.Service, bus *events.Bus, costTracker *cost.Tracker) *Orchestrator {
	return &Orchestrator{
		lead:     leadAgent,
		citation: citationAgent,
		search:   searchAgent,
		mem:      mem,
		bus:      bus,
		cost:     costTracker,
		runID:    runID,
	}
}

// Run executes the full iteration state machine and returns the
// completed run's result. A non-nil error is returned only for
// cancellation; every other failure is absorbed into a deterministic
// fallback per spec.md §7.
func (o *Orchestrator) Run(ctx context.Context, req types.ResearchRequest) (types.ResearchRunResult, error) {
	req = req.Clamp()
	start := time.Now()
	createdAt := start.UTC()

	o.writeDigest(ctx, req, createdAt, "running", "")
	o.publish(types.RunEvent{Stage: types.StageBootstrap, Message: fmt.Sprintf("starting run for %q", req.Query)})

	var baseline cost.Snapshot
	if o.cost != nil {
		baseline = o.cost.Snapshot()
	}

	var allEvidence []types.EvidenceRecord
	var summaries []types.IterationSynthesis
	var agentModelCalls int64
	iterationsRun := 0

	for i := 0; i < req.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return o.errorResult(ctx, req, createdAt, start, err)
		}

		iterationsRun = i + 1

		memoryHits, _ := o.mem.Search(ctx, "iteration")
		memoryContext := make([]string, 0, len(memoryHits))
		for _, h := range memoryHits {
			memoryContext = append(memoryContext, h.Value)
		}

		plan := o.lead.CreateIterationPlan(ctx, req, i, summaries, memoryContext)
		o.mem.Write(ctx, fmt.Sprintf("iteration:%d:plan", i), plan)
		iterIdx := i
		o.publish(types.RunEvent{
			Stage:     types.StagePlan,
			Iteration: &iterIdx,
			Metrics:   map[string]any{"tasks": len(plan.SubagentTasks)},
		})

		if len(plan.SubagentTasks) == 0 {
			break
		}

		iterationEvidence, taskErrors := o.fanOut(ctx, i, plan.SubagentTasks, req, &agentModelCalls)
		allEvidence = append(allEvidence, iterationEvidence...)

		o.publish(types.RunEvent{
			Stage:     types.StageSearch,
			Iteration: &iterIdx,
			Metrics: map[string]any{
				"evidence_gathered": len(iterationEvidence),
				"task_errors":       taskErrors,
			},
		})

		synthesis := o.lead.SynthesizeIteration(ctx, req, i, iterationEvidence, summaries)
		o.mem.Write(ctx, fmt.Sprintf("iteration:%d:synthesis", i), synthesis)
		summaries = append(summaries, synthesis)
		o.publish(types.RunEvent{
			Stage:     types.StageSynthesize,
			Iteration: &iterIdx,
			Message:   synthesis.Summary,
		})

		zeroEvidence := len(iterationEvidence) == 0
		gatedEarlyStop := req.DepthPolicy == types.DepthAdaptive && (!plan.ContinueLoop || !synthesis.ContinueLoop)
		if gatedEarlyStop || zeroEvidence {
			break
		}
	}

	citations := o.citation.BuildCitations(ctx, req.Query, allEvidence)
	o.publish(types.RunEvent{Stage: types.StageCite, Metrics: map[string]any{"citations": len(citations)}})

	draft := o.lead.BuildFinalReport(ctx, req, summaries, allEvidence, citations)
	markdown := report.Render(req, draft, citations)
	reportWords := len(splitWords(markdown))
	o.publish(types.RunEvent{Stage: types.StageReport, Metrics: map[string]any{"report_words": reportWords}})

	stats := o.buildRunStats(start, iterationsRun, allEvidence, citations, int(atomic.LoadInt64(&agentModelCalls)), baseline)
	o.publish(types.RunEvent{Stage: types.StageComplete, Metrics: map[string]any{"elapsed_seconds": stats.ElapsedSeconds}})

	result := types.ResearchRunResult{
		RunID:              o.runID,
		Request:            req,
		ReportMarkdown:     markdown,
		Citations:          citations,
		Evidence:           allEvidence,
		IterationSummaries: summaries,
		RunStats:           stats,
	}

	outputJSON, _ := json.Marshal(result)
	o.writeDigest(ctx, req, createdAt, "completed", string(outputJSON))

	return result, nil
}

func (o *Orchestrator) errorResult(ctx context.Context, req types.ResearchRequest, createdAt, start time.Time, err error) (types.ResearchRunResult, error) {
	o.publish(types.RunEvent{Stage: types.StageError, Message: err.Error()})
	o.writeDigest(ctx, req, createdAt, "error", err.Error())
	return types.ResearchRunResult{
		RunID:   o.runID,
		Request: req,
		RunStats: types.RunStats{
			ElapsedSeconds: time.Since(start).Seconds(),
		},
	}, err
}

// fanOut dispatches every task in an iteration concurrently under a
// semaphore of capacity req.Parallelism, per spec.md §4.3 step 3.
func (o *Orchestrator) fanOut(ctx context.Context, iteration int, tasks []types.SubagentTask, req types.ResearchRequest, agentModelCalls *int64) ([]types.EvidenceRecord, int) {
	sem := semaphore.NewWeighted(int64(req.Parallelism))

	var mu sync.Mutex
	var evidence []types.EvidenceRecord
	var taskErrors int
	completedTasks := 0
	total := len(tasks)

	var wg sync.WaitGroup
	for idx, task := range tasks {
		idx, task := idx, task
		wg.Add(1)
		go func() {
			defer wg.Done()

			iterIdx := iteration
			o.publish(types.RunEvent{
				Stage:     types.StageSearch,
				Iteration: &iterIdx,
				Payload: map[string]any{
					"task_index": idx,
					"task_total": total,
					"task_id":    task.TaskID,
					"focus":      task.Focus,
				},
			})

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			o.mem.Write(ctx, fmt.Sprintf("iteration:%d:blackboard:%s", iteration, task.TaskID), map[string]any{
				"sender":    "lead",
				"recipient": task.TaskID,
				"focus":     task.Focus,
				"queries":   task.SearchQueries,
			})

			adapter := subagent.EmitterFunc(func(t subagent.Trace) {
				o.forwardTrace(iteration, t, agentModelCalls)
			})

			taskEvidence, err := o.search.ExecuteTask(ctx, task, req, adapter)
			if err != nil {
				o.publish(types.RunEvent{
					Stage:     types.StageError,
					Iteration: &iterIdx,
					Payload:   map[string]any{"task_id": task.TaskID, "error": err.Error()},
				})
				mu.Lock()
				taskErrors++
				mu.Unlock()
				return
			}

			o.mem.Write(ctx, fmt.Sprintf("iteration:%d:task:%s", iteration, task.TaskID), taskEvidence)

			mu.Lock()
			evidence = append(evidence, taskEvidence...)
			completedTasks++
			tasksCompleted := completedTasks
			evidenceCount := len(evidence)
			mu.Unlock()

			o.mem.Write(ctx, "evidence_count", evidenceCount)
			o.publish(types.RunEvent{
				Stage:     types.StageSearch,
				Iteration: &iterIdx,
				Payload: map[string]any{
					"task_id":         task.TaskID,
					"tasks_completed": tasksCompleted,
					"evidence":        len(taskEvidence),
				},
			})
		}()
	}
	wg.Wait()

	return evidence, taskErrors
}

// forwardTrace adapts a subagent.Trace into a "search" RunEvent enriched
// with metrics.trace_type, per spec.md §4.3 step 3.
func (o *Orchestrator) forwardTrace(iteration int, t subagent.Trace, agentModelCalls *int64) {
	if t.Type == subagent.TraceExtractStarted {
		atomic.AddInt64(agentModelCalls, 1)
	}

	metrics := map[string]any{"trace_type": t.Type}
	for _, key := range []string{"hits", "scraped", "missed", "confidence"} {
		if v, ok := t.Payload[key]; ok {
			metrics[key] = v
		}
	}

	iterIdx := iteration
	o.publish(types.RunEvent{
		Stage:     types.StageSearch,
		Iteration: &iterIdx,
		Metrics:   metrics,
		Payload:   t.Payload,
	})
}

func (o *Orchestrator) buildRunStats(start time.Time, iterations int, evidence []types.EvidenceRecord, citations []types.CitationEntry, agentModelCalls int, baseline cost.Snapshot) types.RunStats {
	stats := types.RunStats{
		ElapsedSeconds:  time.Since(start).Seconds(),
		Iterations:      iterations,
		EvidenceCount:   len(evidence),
		CitationCount:   len(citations),
		AgentModelCalls: agentModelCalls,
	}

	if o.cost == nil {
		return stats
	}

	delta := o.cost.DeltaSince(baseline)
	stats.MeteredCalls = delta.MeteredCalls
	stats.LLMTokens = delta.TotalTokens
	stats.USDSpent = delta.USDSpent
	if delta.MeteredCalls >= agentModelCalls {
		stats.CostCoverage = "full"
	} else {
		stats.CostCoverage = "partial"
	}
	return stats
}

func (o *Orchestrator) publish(event types.RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	o.logMu.Lock()
	o.eventLog = append(o.eventLog, event)
	o.logMu.Unlock()

	if o.bus != nil {
		o.bus.Publish(event)
	}
}

// digest snapshots the event log accumulated so far for persistence via
// inspect_run (spec.md §6 "Run inspection").
func (o *Orchestrator) digest() []types.RunEvent {
	o.logMu.Lock()
	defer o.logMu.Unlock()
	out := make([]types.RunEvent, len(o.eventLog))
	copy(out, o.eventLog)
	return out
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if isSpace {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// writeDigest persists the run's inspect_run record (spec.md §6) as the
// current state of the run: status, timestamps, input, a JSON snapshot of
// the output so far, and every event published up to this point.
func (o *Orchestrator) writeDigest(ctx context.Context, req types.ResearchRequest, createdAt time.Time, status, outputJSON string) {
	digest := types.RunDigest{
		Exists:     true,
		RunID:      o.runID,
		Status:     status,
		CreatedAt:  createdAt,
		UpdatedAt:  time.Now().UTC(),
		Input:      req,
		OutputJSON: outputJSON,
		Events:     o.digest(),
	}
	o.mem.WriteDigest(ctx, "run_digest", digest)
}
