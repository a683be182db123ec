package types

// SubagentTask is one independent research thread within an iteration,
// produced by the lead planner and consumed once by a subagent.
type SubagentTask struct {
	TaskID         string
	Focus          string
	SearchQueries  []string
	ExpectedOutput string
}

// IterationPlan is the output of LeadAgent.create_iteration_plan for one
// iteration, persisted into memory under iteration:{i}:plan.
type IterationPlan struct {
	IterationIndex int
	Goals          []string
	SubagentTasks  []SubagentTask
	ContinueLoop   bool
	StopReason     string
}

// IterationSynthesis is produced once per iteration by
// LeadAgent.synthesize_iteration and appended in order.
type IterationSynthesis struct {
	Summary       string
	KeyFindings   []string
	OpenQuestions []string
	ContinueLoop  bool
	StopReason    string
}
