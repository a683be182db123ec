// Package cost implements the thread-safe cost accumulator of spec.md
// §4.6, subscribed to llm.CompletionSignal events emitted by whatever
// concrete LLM client the engine wires up.
package cost

import (
	"sync"

	"github.com/montanaflynn/stats"

	"deepresearch/internal/llm"
)

// Snapshot is a point-in-time, componentwise-non-negative view of
// accumulated cost.
type Snapshot struct {
	MeteredCalls     int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	USDSpent         float64

	// Median of the per-call USD costs, exposed for diagnostics; zero when
	// fewer than 2 calls observed.
	MedianCallCostUSD float64
}

// Tracker accumulates CompletionSignal payloads behind a mutex. It is the
// only shared mutable state in the core that is touched from more than one
// goroutine outside the async bridge's single worker thread (spec.md §5),
// so every method takes the lock.
//
// Grounded on internal/session/session.go's CostBreakdown.Add, generalized
// from a plain value callers summed by hand into a subscriber the LLM
// client notifies directly.
type Tracker struct {
	mu        sync.Mutex
	calls     int
	prompt    int
	completion int
	total     int
	usd       float64
	callCosts []float64
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{}
}

var _ llm.CompletionObserver = (*Tracker)(nil)

// ObserveCompletion records one LLM completion signal. Fields are parsed
// defensively: negative values are clamped to zero, and TotalTokens is
// derived from PromptTokens+CompletionTokens when the provider omitted it,
// per spec.md §4.6 and §7 ("cost-event parsing error... the faulty event
// contributes nothing").
func (t *Tracker) ObserveCompletion(sig llm.CompletionSignal) {
	prompt := nonNegative(sig.PromptTokens)
	completion := nonNegative(sig.CompletionTokens)
	total := nonNegative(sig.TotalTokens)
	if total == 0 {
		total = prompt + completion
	}
	usd := sig.Cost
	if usd < 0 {
		usd = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.prompt += prompt
	t.completion += completion
	t.total += total
	t.usd += usd
	t.callCosts = append(t.callCosts, usd)
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Snapshot returns the current accumulated totals.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	median := 0.0
	if len(t.callCosts) >= 2 {
		if m, err := stats.Median(append([]float64(nil), t.callCosts...)); err == nil {
			median = m
		}
	}
	return Snapshot{
		MeteredCalls:      t.calls,
		PromptTokens:      t.prompt,
		CompletionTokens:  t.completion,
		TotalTokens:       t.total,
		USDSpent:          t.usd,
		MedianCallCostUSD: median,
	}
}

// DeltaSince returns the componentwise-non-negative difference between the
// current snapshot and a baseline taken earlier from the same Tracker.
// MedianCallCostUSD is not a difference: it carries the current median.
func (t *Tracker) DeltaSince(baseline Snapshot) Snapshot {
	now := t.Snapshot()
	return Snapshot{
		MeteredCalls:      subNonNeg(now.MeteredCalls, baseline.MeteredCalls),
		PromptTokens:      subNonNeg(now.PromptTokens, baseline.PromptTokens),
		CompletionTokens:  subNonNeg(now.CompletionTokens, baseline.CompletionTokens),
		TotalTokens:       subNonNeg(now.TotalTokens, baseline.TotalTokens),
		USDSpent:          subNonNegF(now.USDSpent, baseline.USDSpent),
		MedianCallCostUSD: now.MedianCallCostUSD,
	}
}

func subNonNeg(a, b int) int {
	if a < b {
		return 0
	}
	return a - b
}

func subNonNegF(a, b float64) float64 {
	if a < b {
		return 0
	}
	return a - b
}
