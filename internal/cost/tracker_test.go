package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"deepresearch/internal/llm"
)

func TestObserveCompletionAccumulatesTotals(t *testing.T) {
	tr := New()
	tr.ObserveCompletion(llm.CompletionSignal{Model: "m", Cost: 0.01, PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	tr.ObserveCompletion(llm.CompletionSignal{Model: "m", Cost: 0.02, PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30})

	snap := tr.Snapshot()
	assert.Equal(t, 2, snap.MeteredCalls)
	assert.Equal(t, 30, snap.PromptTokens)
	assert.Equal(t, 15, snap.CompletionTokens)
	assert.Equal(t, 45, snap.TotalTokens)
	assert.InDelta(t, 0.03, snap.USDSpent, 1e-9)
	assert.InDelta(t, 0.015, snap.MedianCallCostUSD, 1e-9)
}

func TestObserveCompletionClampsNegativesAndDerivesTotal(t *testing.T) {
	tr := New()
	tr.ObserveCompletion(llm.CompletionSignal{Cost: -5, PromptTokens: -1, CompletionTokens: 8, TotalTokens: 0})

	snap := tr.Snapshot()
	assert.Equal(t, 0, snap.PromptTokens)
	assert.Equal(t, 8, snap.CompletionTokens)
	assert.Equal(t, 8, snap.TotalTokens)
	assert.Equal(t, 0.0, snap.USDSpent)
}

func TestDeltaSinceReturnsOnlyNewActivity(t *testing.T) {
	tr := New()
	tr.ObserveCompletion(llm.CompletionSignal{Cost: 0.10, TotalTokens: 100})
	baseline := tr.Snapshot()

	tr.ObserveCompletion(llm.CompletionSignal{Cost: 0.05, TotalTokens: 50})

	delta := tr.DeltaSince(baseline)
	assert.Equal(t, 1, delta.MeteredCalls)
	assert.Equal(t, 50, delta.TotalTokens)
	assert.InDelta(t, 0.05, delta.USDSpent, 1e-9)
}

func TestTrackerIsSafeForConcurrentUse(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.ObserveCompletion(llm.CompletionSignal{Cost: 0.001, TotalTokens: 1})
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	assert.Equal(t, 50, snap.MeteredCalls)
	assert.Equal(t, 50, snap.TotalTokens)
}
