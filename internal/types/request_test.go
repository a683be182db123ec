package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampFillsZeroValuesWithDefaults(t *testing.T) {
	out := ResearchRequest{Query: "q"}.Clamp()

	assert.Equal(t, 3, out.MaxIterations)
	assert.Equal(t, 3, out.Parallelism)
	assert.Equal(t, 6, out.MaxResultsPerQuery)
	assert.Equal(t, 5, out.MaxPagesPerTask)
	assert.Equal(t, DetailStandard, out.DetailLevel)
	assert.Equal(t, DepthAdaptive, out.DepthPolicy)
}

func TestClampBoundsOutOfRangeValues(t *testing.T) {
	out := ResearchRequest{MaxIterations: 99, Parallelism: -5, MaxResultsPerQuery: 1000, MaxPagesPerTask: 0}.Clamp()

	assert.Equal(t, 8, out.MaxIterations)
	assert.Equal(t, 1, out.Parallelism)
	assert.Equal(t, 20, out.MaxResultsPerQuery)
	assert.Equal(t, 5, out.MaxPagesPerTask)
}

func TestClampDoesNotMutateReceiver(t *testing.T) {
	original := ResearchRequest{Query: "q"}
	_ = original.Clamp()
	assert.Equal(t, 0, original.MaxIterations)
}

func TestWordTargetVariesByDetailLevel(t *testing.T) {
	assert.Equal(t, 1200, ResearchRequest{DetailLevel: DetailConcise}.WordTarget())
	assert.Equal(t, 2200, ResearchRequest{DetailLevel: DetailStandard}.WordTarget())
	assert.Equal(t, 3600, ResearchRequest{DetailLevel: DetailHigh}.WordTarget())
	assert.Equal(t, 2200, ResearchRequest{}.WordTarget())
}
