// Package control implements the command channel: parse, schema-validate,
// expiry-check, priority-enqueue, and a single-flight drain loop dispatching
// to typed handlers. The drain loop generalizes a retry/backoff worker
// loop from "retry this worker" to "drain this queue one item at a time."
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"livermore/internal/cache"
	"livermore/internal/cachekeys"
	"livermore/internal/model"
)

// ExpiryWindowMS is the maximum age a command may have before it is
// rejected as expired.
const ExpiryWindowMS = 30_000

// Handlers bundles the command implementations the Controller dispatches
// to. Every handler returns response data (nil is fine) or an error, which
// the Controller turns into a success/error response.
type Handlers struct {
	Pause          func(ctx context.Context) (map[string]any, error)
	Resume         func(ctx context.Context) (map[string]any, error)
	ReloadSettings func(ctx context.Context) (map[string]any, error)
	SwitchMode     func(ctx context.Context, mode string) (map[string]any, error)
	ForceBackfill  func(ctx context.Context, symbol string, timeframes []string) (map[string]any, error)
	ClearCache     func(ctx context.Context, scope model.ClearCacheScope, symbol, tf string) (map[string]any, error)
	AddSymbol      func(ctx context.Context, symbol string) (map[string]any, error)
	RemoveSymbol   func(ctx context.Context, symbol string) (map[string]any, error)
	BulkAddSymbols func(ctx context.Context, symbols []string) (map[string]any, error)
}

// Controller owns one identity's command channel subscription, queue, and
// drain loop.
type Controller struct {
	identitySub string
	cacheSvc    cache.Service
	handlers    Handlers
	logger      *zap.Logger
	now         func() int64

	drainSignal chan struct{}
	draining    sync.Mutex // held only while dispatching one popped command — enforces single-flight
}

func New(identitySub string, store cache.Service, handlers Handlers, logger *zap.Logger, nowFn func() int64) *Controller {
	return &Controller{
		identitySub: identitySub,
		cacheSvc:    store,
		handlers:    handlers,
		logger:      logger.Named("control"),
		now:         nowFn,
		drainSignal: make(chan struct{}, 1),
	}
}

// Run subscribes to the command channel and drives both the intake loop
// (parse/validate/enqueue) and the drain loop until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	channel := cachekeys.CommandChannel(c.identitySub)
	msgs, closeSub, err := c.cacheSvc.Subscribe(ctx, []string{channel})
	if err != nil {
		return fmt.Errorf("control: subscribe: %w", err)
	}
	defer closeSub()

	go c.drainForever(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.intake(ctx, msg.Payload)
		}
	}
}

// intake parses, validates, checks expiry, and priority-enqueues one
// inbound command, then signals the drain loop; the ack is sent when the
// command is dispatched.
func (c *Controller) intake(ctx context.Context, raw []byte) {
	var cmd model.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.logger.Debug("control: unparseable command dropped", zap.Error(err))
		return
	}

	if cmd.CorrelationID == "" || cmd.Type == "" || cmd.Timestamp == 0 || !model.ValidCommandType(cmd.Type) {
		c.logger.Debug("control: schema-invalid command dropped", zap.String("type", cmd.Type))
		return
	}

	if c.now()-cmd.Timestamp > ExpiryWindowMS {
		c.respond(ctx, model.CommandResponse{
			CorrelationID: cmd.CorrelationID,
			Status:        model.ResponseError,
			Message:       "Command expired",
			Timestamp:     c.now(),
		})
		return
	}

	encoded, err := json.Marshal(cmd)
	if err != nil {
		c.logger.Warn("control: re-marshal command failed", zap.Error(err))
		return
	}

	queue := cachekeys.CommandQueue(c.identitySub)
	priority := float64(cmd.EffectivePriority())
	if err := c.cacheSvc.Push(ctx, queue, priority, string(encoded)); err != nil {
		c.logger.Warn("control: enqueue failed", zap.Error(err))
		return
	}

	select {
	case c.drainSignal <- struct{}{}:
	default:
	}
}

// drainForever is the single-flight drain loop: it
// wakes only on a drain signal, and empties the queue one
// command at a time before going back to sleep.
func (c *Controller) drainForever(ctx context.Context) {
	queue := cachekeys.CommandQueue(c.identitySub)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.drainSignal:
		}

		for {
			member, ok, err := c.cacheSvc.PopLowest(ctx, queue)
			if err != nil {
				c.logger.Warn("control: drain pop failed", zap.Error(err))
				break
			}
			if !ok {
				break
			}
			c.draining.Lock()
			c.dispatch(ctx, member)
			c.draining.Unlock()
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, encoded string) {
	var cmd model.Command
	if err := json.Unmarshal([]byte(encoded), &cmd); err != nil {
		c.logger.Warn("control: corrupt queued command", zap.Error(err))
		return
	}

	c.respond(ctx, model.CommandResponse{CorrelationID: cmd.CorrelationID, Status: model.ResponseAck, Timestamp: c.now()})

	data, err := c.handle(ctx, cmd)
	if err != nil {
		c.respond(ctx, model.CommandResponse{
			CorrelationID: cmd.CorrelationID,
			Status:        model.ResponseError,
			Message:       err.Error(),
			Timestamp:     c.now(),
		})
		return
	}
	c.respond(ctx, model.CommandResponse{
		CorrelationID: cmd.CorrelationID,
		Status:        model.ResponseSuccess,
		Data:          data,
		Timestamp:     c.now(),
	})
}

func (c *Controller) handle(ctx context.Context, cmd model.Command) (map[string]any, error) {
	switch model.CommandType(cmd.Type) {
	case model.CommandPause:
		return c.handlers.Pause(ctx)
	case model.CommandResume:
		return c.handlers.Resume(ctx)
	case model.CommandReloadSettings:
		return c.handlers.ReloadSettings(ctx)
	case model.CommandSwitchMode:
		mode, _ := cmd.Payload["mode"].(string)
		return c.handlers.SwitchMode(ctx, mode)
	case model.CommandForceBackfill:
		symbol, _ := cmd.Payload["symbol"].(string)
		return c.handlers.ForceBackfill(ctx, symbol, stringSlice(cmd.Payload["timeframes"]))
	case model.CommandClearCache:
		scope, _ := cmd.Payload["scope"].(string)
		symbol, _ := cmd.Payload["symbol"].(string)
		tf, _ := cmd.Payload["timeframe"].(string)
		return c.handlers.ClearCache(ctx, model.ClearCacheScope(scope), symbol, tf)
	case model.CommandAddSymbol:
		symbol, _ := cmd.Payload["symbol"].(string)
		return c.handlers.AddSymbol(ctx, normalizeSymbol(symbol))
	case model.CommandRemoveSymbol:
		symbol, _ := cmd.Payload["symbol"].(string)
		return c.handlers.RemoveSymbol(ctx, normalizeSymbol(symbol))
	case model.CommandBulkAddSymbols:
		symbols := stringSlice(cmd.Payload["symbols"])
		for i, s := range symbols {
			symbols[i] = normalizeSymbol(s)
		}
		return c.handlers.BulkAddSymbols(ctx, symbols)
	default:
		return nil, fmt.Errorf("control: unhandled command type %q", cmd.Type)
	}
}

func (c *Controller) respond(ctx context.Context, resp model.CommandResponse) {
	channel := cachekeys.ResponseChannel(c.identitySub)
	if err := c.cacheSvc.Publish(ctx, channel, resp); err != nil {
		c.logger.Warn("control: publish response failed", zap.String("correlationId", resp.CorrelationID), zap.Error(err))
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
