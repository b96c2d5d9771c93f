// Package notifier delivers triggered alerts to external channels.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"livermore/internal/model"
)

// Payload is what the alert evaluator hands to a Notifier on emit.
type Payload struct {
	Symbol       string
	Timeframe    model.Timeframe
	Trigger      model.AlertTrigger
	TriggerValue float64
	Price        float64
	Bias         model.Bias
	ChartURL     string // empty when no chart was generated
}

// Notifier is the interface for all alert delivery backends. Send is
// best-effort: the evaluator records failures but never blocks or retries
// on them.
type Notifier interface {
	Send(ctx context.Context, p Payload) error
}

// LogNotifier logs alerts instead of delivering them; useful for
// development and as the default when no webhook URL is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Send(ctx context.Context, p Payload) error {
	n.logger.Info("alert",
		zap.String("symbol", p.Symbol),
		zap.String("timeframe", string(p.Timeframe)),
		zap.String("trigger", p.Trigger.Label()),
		zap.Float64("triggerValue", p.TriggerValue),
		zap.String("bias", string(p.Bias)),
	)
	return nil
}
