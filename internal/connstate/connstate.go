// Package connstate implements the connection-state machine: guarded
// transitions between lifecycle states, a capped history, and mirroring
// into the instance registry.
package connstate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"livermore/internal/model"
	"livermore/internal/registry"
)

const historyCap = 50

// allowed lists every valid (from, to) transition.
var allowed = map[model.ConnectionState][]model.ConnectionState{
	model.StateIdle:     {model.StateStarting},
	model.StateStarting: {model.StateWarming, model.StateStopping},
	model.StateWarming:  {model.StateActive, model.StateStopping},
	model.StateActive:   {model.StateStopping},
	model.StateStopping: {model.StateStopped, model.StateIdle},
	model.StateStopped:  {model.StateStarting, model.StateIdle},
}

// Transition records one state change for the history.
type Transition struct {
	From model.ConnectionState
	To   model.ConnectionState
	AtMs int64
}

// Machine owns the current connection state and its history, mirroring
// every change into the Registry.
type Machine struct {
	reg    *registry.Registry
	logger *zap.Logger

	mu      sync.Mutex
	current model.ConnectionState
	history []Transition
}

func New(reg *registry.Registry, logger *zap.Logger) *Machine {
	return &Machine{
		reg:     reg,
		logger:  logger.Named("connstate"),
		current: model.StateIdle,
	}
}

func (m *Machine) Current() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the capped transition history, oldest-first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Transition validates and applies a state change, appends to history, and
// mirrors the new state into the Registry. Returns model.ErrStateInvalid
// (wrapped) for a disallowed transition.
func (m *Machine) Transition(ctx context.Context, to model.ConnectionState, nowMs int64) error {
	m.mu.Lock()
	from := m.current
	valid := false
	for _, candidate := range allowed[from] {
		if candidate == to {
			valid = true
			break
		}
	}
	if !valid {
		m.mu.Unlock()
		return fmt.Errorf("connstate: %s -> %s not allowed: %w", from, to, model.ErrStateInvalid)
	}

	m.current = to
	m.history = append(m.history, Transition{From: from, To: to, AtMs: nowMs})
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.mu.Unlock()

	err := m.reg.UpdateStatus(ctx, func(p *registry.Payload) {
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra["connectionState"] = string(to)
		p.Extra["lastStateChange"] = nowMs
		if to == model.StateActive {
			p.Extra["connectedAt"] = nowMs
		}
	})
	if err != nil {
		m.logger.Warn("registry mirror failed", zap.String("to", string(to)), zap.Error(err))
	}
	return nil
}

// ResetToIdle is the non-validated escape hatch for crash recovery:
// it bypasses the transition table entirely.
func (m *Machine) ResetToIdle(ctx context.Context, nowMs int64) {
	m.mu.Lock()
	from := m.current
	m.current = model.StateIdle
	m.history = append(m.history, Transition{From: from, To: model.StateIdle, AtMs: nowMs})
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
	m.mu.Unlock()

	if err := m.reg.UpdateStatus(ctx, func(p *registry.Payload) {
		if p.Extra == nil {
			p.Extra = map[string]any{}
		}
		p.Extra["connectionState"] = string(model.StateIdle)
		p.Extra["lastStateChange"] = nowMs
	}); err != nil {
		m.logger.Warn("registry mirror failed on reset", zap.Error(err))
	}
}
