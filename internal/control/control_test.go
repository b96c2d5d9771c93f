package control

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livermore/internal/cache/cachetest"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

func newTestController(t *testing.T, handlers Handlers, nowMs int64) (*Controller, *cachetest.Fake) {
	t.Helper()
	store := cachetest.New()
	c := New("binance-sub", store, handlers, zap.NewNop(), func() int64 { return nowMs })
	return c, store
}

func marshalCommand(t *testing.T, cmd model.Command) []byte {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return raw
}

func TestIntake_SchemaInvalidDropped(t *testing.T) {
	c, store := newTestController(t, Handlers{}, 1_000_000)
	c.intake(context.Background(), []byte(`{"type":"pause"}`))

	n, err := store.Len(context.Background(), cachekeys.CommandQueue("binance-sub"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIntake_ExpiredCommandGetsErrorResponse(t *testing.T) {
	c, store := newTestController(t, Handlers{}, 1_000_000)
	ch, closeSub, err := store.Subscribe(context.Background(), []string{cachekeys.ResponseChannel("binance-sub")})
	require.NoError(t, err)
	defer closeSub()

	cmd := model.Command{CorrelationID: "abc", Type: string(model.CommandPause), Timestamp: 1}
	c.intake(context.Background(), marshalCommand(t, cmd))

	msg := <-ch
	var resp model.CommandResponse
	require.NoError(t, json.Unmarshal(msg.Payload, &resp))
	assert.Equal(t, model.ResponseError, resp.Status)
	assert.Equal(t, "Command expired", resp.Message)
}

func TestIntake_ValidCommandEnqueuedByPriority(t *testing.T) {
	c, store := newTestController(t, Handlers{}, 1000)
	cmd := model.Command{CorrelationID: "abc", Type: string(model.CommandPause), Timestamp: 1000}
	c.intake(context.Background(), marshalCommand(t, cmd))

	n, err := store.Len(context.Background(), cachekeys.CommandQueue("binance-sub"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDispatch_PauseHandlerSuccess(t *testing.T) {
	called := false
	handlers := Handlers{
		Pause: func(ctx context.Context) (map[string]any, error) {
			called = true
			return map[string]any{"paused": true}, nil
		},
	}
	c, store := newTestController(t, handlers, 2000)
	ch, closeSub, err := store.Subscribe(context.Background(), []string{cachekeys.ResponseChannel("binance-sub")})
	require.NoError(t, err)
	defer closeSub()

	cmd := model.Command{CorrelationID: "xyz", Type: string(model.CommandPause), Timestamp: 2000}
	encoded, err := json.Marshal(cmd)
	require.NoError(t, err)
	c.dispatch(context.Background(), string(encoded))

	assert.True(t, called)

	ack := <-ch
	var ackResp model.CommandResponse
	require.NoError(t, json.Unmarshal(ack.Payload, &ackResp))
	assert.Equal(t, model.ResponseAck, ackResp.Status)

	success := <-ch
	var successResp model.CommandResponse
	require.NoError(t, json.Unmarshal(success.Payload, &successResp))
	assert.Equal(t, model.ResponseSuccess, successResp.Status)
	assert.Equal(t, true, successResp.Data["paused"])
}

func TestDispatch_HandlerErrorProducesErrorResponse(t *testing.T) {
	handlers := Handlers{
		Resume: func(ctx context.Context) (map[string]any, error) {
			return nil, assert.AnError
		},
	}
	c, store := newTestController(t, handlers, 3000)
	ch, closeSub, err := store.Subscribe(context.Background(), []string{cachekeys.ResponseChannel("binance-sub")})
	require.NoError(t, err)
	defer closeSub()

	cmd := model.Command{CorrelationID: "err1", Type: string(model.CommandResume), Timestamp: 3000}
	encoded, err := json.Marshal(cmd)
	require.NoError(t, err)
	c.dispatch(context.Background(), string(encoded))

	<-ch // ack
	errMsg := <-ch
	var resp model.CommandResponse
	require.NoError(t, json.Unmarshal(errMsg.Payload, &resp))
	assert.Equal(t, model.ResponseError, resp.Status)
}
