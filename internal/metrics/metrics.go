// Package metrics exposes the pipeline's Prometheus surface: candle
// closes, indicator computations, alerts fired, control-command latency,
// and registry heartbeat health, served via promhttp.Handler(). Grounded
// on internal/metrics/prometheus_metrics.go's constructor-and-field-groups
// shape and its Start/Stop HTTP server lifecycle; relabeled from the
// teacher's gap-detection/orderbook domain to this pipeline's own.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds every Prometheus collector the pipeline registers.
type Metrics struct {
	CandlesClosed        *prometheus.CounterVec
	IndicatorComputations *prometheus.CounterVec
	IndicatorLatency     *prometheus.HistogramVec
	AlertsFired          *prometheus.CounterVec
	ControlLatency       *prometheus.HistogramVec
	RegistryHeartbeats   *prometheus.CounterVec
	ConnectionState      *prometheus.GaugeVec

	logger *zap.Logger
	server *http.Server
}

func New(logger *zap.Logger) *Metrics {
	return &Metrics{
		logger: logger.Named("metrics"),

		CandlesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livermore_candles_closed_total",
				Help: "Total number of candles closed by the aggregator",
			},
			[]string{"exchange", "symbol", "timeframe"},
		),

		IndicatorComputations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livermore_indicator_computations_total",
				Help: "Total number of indicator recomputations, by outcome reason",
			},
			[]string{"exchange", "symbol", "timeframe", "reason"},
		),

		IndicatorLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livermore_indicator_compute_seconds",
				Help:    "Time to recompute one symbol/timeframe's indicator value",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"exchange", "timeframe"},
		),

		AlertsFired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livermore_alerts_fired_total",
				Help: "Total number of alerts emitted, by trigger kind",
			},
			[]string{"exchange", "symbol", "kind"},
		),

		ControlLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livermore_control_command_seconds",
				Help:    "Time from command dequeue to final response",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"exchange", "command"},
		),

		RegistryHeartbeats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livermore_registry_heartbeats_total",
				Help: "Total number of registry heartbeat writes, by outcome",
			},
			[]string{"exchange", "outcome"},
		),

		ConnectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "livermore_connection_state",
				Help: "1 for the current connection state, 0 otherwise",
			},
			[]string{"exchange", "state"},
		),
	}
}

// Register adds every collector to the default registry.
func (m *Metrics) Register() {
	prometheus.MustRegister(
		m.CandlesClosed,
		m.IndicatorComputations,
		m.IndicatorLatency,
		m.AlertsFired,
		m.ControlLatency,
		m.RegistryHeartbeats,
		m.ConnectionState,
	)
}

// Start serves /metrics and /health on addr (e.g. ":9090").
func (m *Metrics) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	m.server = &http.Server{Addr: addr, Handler: mux}

	m.logger.Info("metrics server starting", zap.String("addr", addr))
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
