package types

import "time"

// Stage identifies which pipeline stage emitted a RunEvent.
type Stage string

const (
	StageBootstrap  Stage = "bootstrap"
	StagePlan       Stage = "plan"
	StageSearch     Stage = "search"
	StageSynthesize Stage = "synthesize"
	StageCite       Stage = "cite"
	StageReport     Stage = "report"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// RunEvent is one entry in the run's append-only progress log. It is also
// the unit streamed to consumers of Engine.Stream.
type RunEvent struct {
	Stage     Stage
	Message   string
	Iteration *int
	Metrics   map[string]any
	Payload   map[string]any
	Timestamp time.Time
}

// RunStats summarizes the resource consumption and shape of a completed run.
type RunStats struct {
	ElapsedSeconds  float64
	Iterations      int
	EvidenceCount   int
	CitationCount   int
	AgentModelCalls int

	// Populated only when the orchestrator has a CostTracker wired.
	MeteredCalls int
	LLMTokens    int
	USDSpent     float64
	CostCoverage string // "full" | "partial"
}

// ResearchRunResult is the final output of a completed run.
type ResearchRunResult struct {
	RunID              string
	Request            ResearchRequest
	ReportMarkdown     string
	Citations          []CitationEntry
	Evidence           []EvidenceRecord
	IterationSummaries []IterationSynthesis
	RunStats           RunStats
}

// RunDigest is the persisted record behind spec.md §6's "Run inspection":
// inspect_run(run_id) -> {exists, run_id, status, created_at, updated_at,
// input, output_json, events[]}. The orchestrator writes one digest per
// run to its memory scope; Engine.InspectRun reads it back.
type RunDigest struct {
	Exists     bool            `json:"exists" yaml:"exists"`
	RunID      string          `json:"run_id" yaml:"run_id"`
	Status     string          `json:"status" yaml:"status"`
	CreatedAt  time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" yaml:"updated_at"`
	Input      ResearchRequest `json:"input" yaml:"input"`
	OutputJSON string          `json:"output_json" yaml:"output_json"`
	Events     []RunEvent      `json:"events" yaml:"events"`
}
