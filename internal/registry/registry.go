// Package registry implements the instance lease: create-only claim,
// replace-only self-restart reclaim, and a heartbeat that never blocks
// process exit. Layered over cache.Service's SETNX-style primitives.
package registry

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

const (
	LeaseTTL         = 45 * time.Second
	HeartbeatInterval = 15 * time.Second
)

// Payload is the JSON document stored at the lease key.
type Payload struct {
	Hostname    string `json:"hostname"`
	IP          string `json:"ip"`
	PID         int    `json:"pid"`
	ConnectedAt int64  `json:"connectedAt"`
	LastError   string `json:"lastError,omitempty"`
	LastErrorAt int64  `json:"lastErrorAt,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ConflictError describes why register() lost the lease race to another
// host.
type ConflictError struct {
	ExchangeID  string
	Existing    Payload
	RemainingTTL time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("registry: exchange %s already leased by %s (ip=%s, connectedAt=%d, ttl=%s)",
		e.ExchangeID, e.Existing.Hostname, e.Existing.IP, e.Existing.ConnectedAt, e.RemainingTTL)
}

func (e *ConflictError) Unwrap() error { return model.ErrLeaseConflict }

// Registry owns one exchange instance's lease.
type Registry struct {
	exchangeID string
	hostname   string
	ip         string
	cacheSvc   cache.Service
	logger     *zap.Logger

	mu         sync.Mutex
	payload    Payload
	registered bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// New builds a Registry; it does not register until Register is called.
func New(exchangeID, ip string, store cache.Service, logger *zap.Logger) *Registry {
	hostname, _ := os.Hostname()
	return &Registry{
		exchangeID: exchangeID,
		hostname:   hostname,
		ip:         ip,
		cacheSvc:   store,
		logger:     logger.Named("registry"),
	}
}

// InstanceIdentity returns this process's identity string
// "{hostname}:{exchangeId}:{pid}:{ms}".
func (r *Registry) InstanceIdentity(nowMs int64) string {
	return r.hostname + ":" + r.exchangeID + ":" + strconv.Itoa(os.Getpid()) + ":" + strconv.FormatInt(nowMs, 10)
}

// Register attempts to claim the lease. A single retry covers the race
// where the key expires between the failed create and the diagnostic read.
func (r *Registry) Register(ctx context.Context, nowMs int64) error {
	key := cachekeys.InstanceStatus(r.exchangeID)

	r.mu.Lock()
	r.payload = Payload{Hostname: r.hostname, IP: r.ip, PID: os.Getpid(), ConnectedAt: nowMs}
	payload := r.payload
	r.mu.Unlock()

	if err := r.tryCreate(ctx, key, payload); err == nil {
		r.markRegistered()
		return nil
	} else if err != cache.ErrPreconditionFailed {
		return err
	}

	existing, readErr := r.readExisting(ctx, key)
	if readErr == cache.ErrNotFound {
		// Stale-key race: the key vanished between our create attempt and
		// this read. Retry create-only once.
		if err := r.tryCreate(ctx, key, payload); err == nil {
			r.markRegistered()
			return nil
		}
		existing, readErr = r.readExisting(ctx, key)
		if readErr != nil {
			return readErr
		}
	} else if readErr != nil {
		return readErr
	}

	if existing.Hostname == r.hostname {
		if err := r.tryReplace(ctx, key, payload); err != nil {
			return err
		}
		r.markRegistered()
		return nil
	}

	ttl, _ := r.cacheSvc.TTL(ctx, key)
	return &ConflictError{ExchangeID: r.exchangeID, Existing: existing, RemainingTTL: ttl}
}

func (r *Registry) markRegistered() {
	r.mu.Lock()
	r.registered = true
	r.mu.Unlock()
}

func (r *Registry) tryCreate(ctx context.Context, key string, p Payload) error {
	return r.cacheSvc.Set(ctx, key, p, cache.CreateOnly, LeaseTTL)
}

func (r *Registry) tryReplace(ctx context.Context, key string, p Payload) error {
	return r.cacheSvc.Set(ctx, key, p, cache.ReplaceOnly, LeaseTTL)
}

func (r *Registry) readExisting(ctx context.Context, key string) (Payload, error) {
	var p Payload
	if err := r.cacheSvc.Get(ctx, key, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// StartHeartbeat launches the 15s replace-only heartbeat loop. It never
// blocks process exit: the caller's ctx cancellation stops it immediately,
// and Deregister returns as soon as the loop goroutine observes its stop.
func (r *Registry) StartHeartbeat(ctx context.Context) {
	r.stopHeartbeat = make(chan struct{})
	r.heartbeatDone = make(chan struct{})

	go func() {
		defer close(r.heartbeatDone)
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopHeartbeat:
				return
			case <-ticker.C:
				r.heartbeatOnce(ctx)
			}
		}
	}()
}

// heartbeatOnce never returns an error: failures are logged rather than
// propagated, since a heartbeat goroutine must never block process exit.
func (r *Registry) heartbeatOnce(ctx context.Context) {
	key := cachekeys.InstanceStatus(r.exchangeID)
	r.mu.Lock()
	payload := r.payload
	r.mu.Unlock()

	err := r.tryReplace(ctx, key, payload)
	if err == cache.ErrPreconditionFailed {
		if regErr := r.Register(ctx, payload.ConnectedAt); regErr != nil {
			r.logger.Warn("heartbeat: re-register failed", zap.Error(regErr))
		}
		return
	}
	if err != nil {
		r.logger.Warn("heartbeat: replace failed", zap.Error(err))
	}
}

// UpdateStatus merges fields into the in-memory payload and, if registered,
// writes them with keep-existing-TTL semantics. A no-op when not registered.
func (r *Registry) UpdateStatus(ctx context.Context, mutate func(*Payload)) error {
	r.mu.Lock()
	mutate(&r.payload)
	payload := r.payload
	registered := r.registered
	r.mu.Unlock()

	if !registered {
		return nil
	}
	key := cachekeys.InstanceStatus(r.exchangeID)
	if err := r.cacheSvc.Set(ctx, key, payload, cache.KeepExistingTTL, 0); err != nil {
		return err
	}
	return nil
}

// RecordError writes lastError/lastErrorAt from memory; it does not read
// first, so it still succeeds immediately after the key expires.
func (r *Registry) RecordError(ctx context.Context, msg string, nowMs int64) error {
	return r.UpdateStatus(ctx, func(p *Payload) {
		p.LastError = msg
		p.LastErrorAt = nowMs
	})
}

// Deregister stops the heartbeat and deletes the lease key.
func (r *Registry) Deregister(ctx context.Context) error {
	if r.stopHeartbeat != nil {
		close(r.stopHeartbeat)
		<-r.heartbeatDone
	}
	r.mu.Lock()
	r.registered = false
	r.mu.Unlock()
	return r.cacheSvc.Delete(ctx, cachekeys.InstanceStatus(r.exchangeID))
}
