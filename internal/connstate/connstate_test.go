package connstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livermore/internal/cache/cachetest"
	"livermore/internal/model"
	"livermore/internal/registry"
)

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	store := cachetest.New()
	reg := registry.New("binance", "10.0.0.1", store, zap.NewNop())
	require.NoError(t, reg.Register(context.Background(), 1000))
	return New(reg, zap.NewNop())
}

func TestTransition_AllowedPath(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	require.NoError(t, m.Transition(ctx, model.StateStarting, 1))
	require.NoError(t, m.Transition(ctx, model.StateWarming, 2))
	require.NoError(t, m.Transition(ctx, model.StateActive, 3))
	assert.Equal(t, model.StateActive, m.Current())

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, model.StateIdle, history[0].From)
	assert.Equal(t, model.StateActive, history[2].To)
}

func TestTransition_RejectsInvalidJump(t *testing.T) {
	m := newTestMachine(t)
	err := m.Transition(context.Background(), model.StateActive, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStateInvalid))
	assert.Equal(t, model.StateIdle, m.Current())
}

func TestTransition_HistoryCapped(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()
	seq := []model.ConnectionState{model.StateStarting, model.StateStopping, model.StateIdle}
	for i := 0; i < 30; i++ {
		for _, s := range seq {
			_ = m.Transition(ctx, s, int64(i))
		}
	}
	assert.LessOrEqual(t, len(m.History()), historyCap)
}

func TestResetToIdle_BypassesValidation(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()
	require.NoError(t, m.Transition(ctx, model.StateStarting, 1))
	require.NoError(t, m.Transition(ctx, model.StateWarming, 2))
	require.NoError(t, m.Transition(ctx, model.StateActive, 3))

	m.ResetToIdle(ctx, 4)
	assert.Equal(t, model.StateIdle, m.Current())

	history := m.History()
	assert.Equal(t, model.StateActive, history[len(history)-1].From)
	assert.Equal(t, model.StateIdle, history[len(history)-1].To)
}
