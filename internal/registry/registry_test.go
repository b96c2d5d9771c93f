package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"livermore/internal/cache/cachetest"
	"livermore/internal/model"
)

func newTestRegistry(ip string) (*Registry, *cachetest.Fake) {
	store := cachetest.New()
	r := New("binance", ip, store, zap.NewNop())
	return r, store
}

func TestRegister_ClaimsFreshLease(t *testing.T) {
	r, _ := newTestRegistry("10.0.0.1")
	err := r.Register(context.Background(), 1000)
	require.NoError(t, err)
	assert.True(t, r.registered)
}

func TestRegister_SelfRestartReplaces(t *testing.T) {
	r1, store := newTestRegistry("10.0.0.1")
	require.NoError(t, r1.Register(context.Background(), 1000))

	r2 := New("binance", "10.0.0.1", store, zap.NewNop())
	r2.hostname = r1.hostname
	err := r2.Register(context.Background(), 2000)
	assert.NoError(t, err)
}

func TestRegister_ConflictFromDifferentHost(t *testing.T) {
	r1, store := newTestRegistry("10.0.0.1")
	require.NoError(t, r1.Register(context.Background(), 1000))

	r2 := New("binance", "10.0.0.2", store, zap.NewNop())
	r2.hostname = r1.hostname + "-other"
	err := r2.Register(context.Background(), 2000)

	require.Error(t, err)
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.True(t, errors.Is(err, model.ErrLeaseConflict))
	assert.Equal(t, "binance", conflict.ExchangeID)
}

func TestUpdateStatus_NoopWhenNotRegistered(t *testing.T) {
	r, _ := newTestRegistry("10.0.0.1")
	err := r.UpdateStatus(context.Background(), func(p *Payload) { p.LastError = "boom" })
	assert.NoError(t, err)
}

func TestRecordError_WritesAfterRegister(t *testing.T) {
	r, store := newTestRegistry("10.0.0.1")
	require.NoError(t, r.Register(context.Background(), 1000))
	require.NoError(t, r.RecordError(context.Background(), "boom", 1500))

	var p Payload
	require.NoError(t, store.Get(context.Background(), "exchange:binance:status", &p))
	assert.Equal(t, "boom", p.LastError)
	assert.Equal(t, int64(1500), p.LastErrorAt)
}

func TestDeregister_DeletesLease(t *testing.T) {
	r, store := newTestRegistry("10.0.0.1")
	require.NoError(t, r.Register(context.Background(), 1000))
	require.NoError(t, r.Deregister(context.Background()))

	var p Payload
	err := store.Get(context.Background(), "exchange:binance:status", &p)
	assert.Error(t, err)
	assert.False(t, r.registered)
}

func TestInstanceIdentity_Format(t *testing.T) {
	r, _ := newTestRegistry("10.0.0.1")
	id := r.InstanceIdentity(1234)
	assert.Contains(t, id, "binance")
	assert.Contains(t, id, ":1234")
}
