// Package llm defines the contract the research pipeline uses to talk to a
// language model, without depending on any concrete provider. Per spec.md
// §1 the LLM client itself is an external collaborator ("Desk/Worker/Job"
// abstraction); this package is the port, not an implementation — see
// internal/llmclient for the concrete OpenRouter-compatible adapter.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status is the outcome of a single LLM call.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Worker names the persona/model/instructions for one call, mirroring the
// teacher's ChatClient.Chat message-building but generalized to a
// named-role abstraction per spec.md §6.
type Worker struct {
	Name         string
	Model        string
	Instructions string
}

// Job is one unit of work submitted to a Worker. ResponseSchema, when set,
// is a JSON Schema (typically produced by llm.SchemaFor) the provider is
// asked to conform its structured output to; ExpectedOutput is a short
// free-text description used in the prompt when no schema is given.
type Job struct {
	InputPrompt    string
	ResponseSchema any
	ExpectedOutput string
}

// Report is the sum-typed result of a Job: either structured Data (valid
// only when ResponseSchema was set and Status is completed) or free-form
// Content. Spec.md §9 calls for a tagged variant rather than a dynamic map;
// Go's nearest idiomatic equivalent is a status-discriminated struct with
// a json.RawMessage payload decoded explicitly at the call site.
type Report struct {
	Status  Status
	Data    json.RawMessage
	Content string
}

// Completed reports whether the call succeeded with a completed status.
func (r Report) Completed() bool {
	return r.Status == StatusCompleted
}

// DecodeData unmarshals the structured Data payload into v. Callers must
// check Completed() and that Data is non-empty before calling this; any
// error here (including an empty payload) should be treated as an LLM
// failure and trigger the caller's deterministic fallback, per spec.md §7.
func (r Report) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("llm: report has no structured data")
	}
	return json.Unmarshal(r.Data, v)
}

// Client runs a Job against a Worker. Any exception or non-completed
// status must trigger the caller's fallback; Client implementations must
// never panic.
type Client interface {
	ARun(ctx context.Context, worker Worker, job Job) (Report, error)
}

// CompletionSignal is the payload a provider emits once per completed (or
// attempted) call, consumed by internal/cost.Tracker. Fields are parsed
// defensively by the tracker: missing values default to zero and totals
// are derived when absent, per spec.md §4.6.
type CompletionSignal struct {
	Model            string
	Cost             float64
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionObserver is notified of every CompletionSignal a Client
// produces. internal/cost.Tracker implements this; callers wire providers
// to one or more observers at construction time (spec.md §9: no hidden
// globals inside the core).
type CompletionObserver interface {
	ObserveCompletion(CompletionSignal)
}
