// Package wsadapter is a exchange.Adapter reference implementation over
// gorilla/websocket, grounded on internal/exchanges/binance.go: the same
// dialer configuration, read-loop-in-a-goroutine, and ping/pong keepalive,
// generalized from one hard-coded exchange to a URL-builder-per-venue shape
// and from raw byte channels to typed callbacks.
package wsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"livermore/internal/exchange"
)

// StreamBuilder builds the combined-stream WebSocket URL for a venue given
// its subscribed symbols (e.g. Binance's "wss://.../stream?streams=...").
type StreamBuilder func(symbols []string) string

// MessageParser turns one raw text frame into a Trade or TickerUpdate; ok is
// false for frames the adapter should ignore (heartbeats, subscription
// acks, unrecognized event types).
type MessageParser func(raw []byte) (trade *exchange.Trade, ticker *exchange.TickerUpdate, ok bool)

// Config names one venue's URL builder and parser.
type Config struct {
	Name          string
	BuildURL      StreamBuilder
	Parse         MessageParser
	HandshakeWait time.Duration // default 45s
	ReadDeadline  time.Duration // default 60s
}

// Adapter is the gorilla/websocket-backed exchange.Adapter.
type Adapter struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	symbols   []string
	connected bool
	onTrade   func(exchange.Trade)
	onTicker  func(exchange.TickerUpdate)

	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	if cfg.HandshakeWait == 0 {
		cfg.HandshakeWait = 45 * time.Second
	}
	if cfg.ReadDeadline == 0 {
		cfg.ReadDeadline = 60 * time.Second
	}
	return &Adapter{cfg: cfg, logger: logger.Named("wsadapter." + cfg.Name)}
}

func (a *Adapter) OnTrade(fn func(exchange.Trade))        { a.onTrade = fn }
func (a *Adapter) OnTicker(fn func(exchange.TickerUpdate)) { a.onTicker = fn }

// Connect dials the venue's WebSocket endpoint for the adapter's current
// symbol set and starts the read loop. Call Subscribe first to set symbols;
// Connect with no symbols dials a URL with no streams, which most venues
// reject — callers are expected to Subscribe before Connect.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connected {
		return nil
	}
	return a.dialLocked(ctx)
}

func (a *Adapter) dialLocked(ctx context.Context) error {
	url := a.cfg.BuildURL(a.symbols)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: a.cfg.HandshakeWait,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	headers := http.Header{}
	headers.Set("User-Agent", "livermore/1.0")

	conn, _, err := dialer.Dial(url, headers)
	if err != nil {
		return fmt.Errorf("wsadapter: dial %s: %w", a.cfg.Name, err)
	}

	conn.SetReadLimit(655350)
	conn.SetReadDeadline(time.Now().Add(a.cfg.ReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(a.cfg.ReadDeadline))
		return nil
	})

	runCtx, cancel := context.WithCancel(ctx)
	a.conn = conn
	a.connected = true
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.readLoop(runCtx)
	go a.pingLoop(runCtx)

	a.logger.Info("connected", zap.String("venue", a.cfg.Name), zap.Int("symbols", len(a.symbols)))
	return nil
}

func (a *Adapter) readLoop(ctx context.Context) {
	defer close(a.done)
	defer func() {
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.mu.RLock()
		conn := a.conn
		a.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			a.logger.Warn("read error", zap.Error(err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		trade, ticker, ok := a.cfg.Parse(raw)
		if !ok {
			continue
		}
		if trade != nil && a.onTrade != nil {
			a.onTrade(*trade)
		}
		if ticker != nil && a.onTicker != nil {
			a.onTicker(*ticker)
		}
	}
}

func (a *Adapter) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.RLock()
			conn := a.conn
			a.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				a.logger.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// Subscribe replaces the symbol list and redials if already connected, so
// the new combined-stream URL takes effect immediately (:
// "refresh WS subscription list to the new set").
func (a *Adapter) Subscribe(ctx context.Context, symbols []string) error {
	a.mu.Lock()
	wasConnected := a.connected
	a.symbols = append([]string(nil), symbols...)
	if !wasConnected {
		a.mu.Unlock()
		return nil
	}
	a.disconnectLocked()
	a.mu.Unlock()

	return a.Connect(ctx)
}

func (a *Adapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectLocked()
	return nil
}

func (a *Adapter) disconnectLocked() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.conn != nil {
		a.conn.Close()
	}
	a.connected = false
	a.conn = nil
}

// ParseFloat is a small helper venue parsers can use for the
// string-encoded price/quantity fields most exchange wire formats use.
func ParseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

var _ exchange.Adapter = (*Adapter)(nil)

// decode is a package-level helper for venue-specific parser functions in
// this package that want a shared JSON-decode error wrapper.
func decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("wsadapter: decode: %w", err)
	}
	return nil
}
