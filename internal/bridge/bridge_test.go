package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepresearch/internal/types"
)

func TestRunReturnsValueAndError(t *testing.T) {
	b := New()
	defer b.Shutdown()

	v, err := Run(b, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = Run(b, func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
}

func TestRunSharesOneLoopIDAcrossCalls(t *testing.T) {
	b := New()
	defer b.Shutdown()

	id1, _ := Run(b, func(ctx context.Context) (string, error) {
		id, _ := LoopID(ctx)
		return id, nil
	})
	id2, _ := Run(b, func(ctx context.Context) (string, error) {
		id, _ := LoopID(ctx)
		return id, nil
	})

	assert.NotEmpty(t, id1)
	assert.Equal(t, id1, id2)
}

func TestStreamDeliversEventsThenWaitReturnsError(t *testing.T) {
	b := New()
	defer b.Shutdown()

	events, wait := b.Stream(func(ctx context.Context, emit func(types.RunEvent)) error {
		emit(types.RunEvent{Stage: types.StagePlan})
		emit(types.RunEvent{Stage: types.StageComplete})
		return errors.New("run failed")
	})

	var received []types.RunEvent
	for e := range events {
		received = append(received, e)
	}
	require.Len(t, received, 2)
	assert.Equal(t, types.StagePlan, received[0].Stage)
	assert.Equal(t, types.StageComplete, received[1].Stage)

	err := wait()
	assert.EqualError(t, err, "run failed")
}
