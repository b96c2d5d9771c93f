package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookNotifier posts alerts to a generic HTTP endpoint, grounded on
// RohanRaikwar-algo-sys-v1/backend/internal/notification/webhook.go.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.Named("notifier.webhook"),
	}
}

type webhookBody struct {
	Symbol       string  `json:"symbol"`
	Timeframe    string  `json:"timeframe"`
	Trigger      string  `json:"trigger"`
	TriggerValue float64 `json:"triggerValue"`
	Price        float64 `json:"price"`
	Bias         string  `json:"bias"`
	ChartURL     string  `json:"chartUrl,omitempty"`
	TriggeredAt  string  `json:"triggeredAt"`
}

func (w *WebhookNotifier) Send(ctx context.Context, p Payload) error {
	body := webhookBody{
		Symbol:       p.Symbol,
		Timeframe:    string(p.Timeframe),
		Trigger:      p.Trigger.Label(),
		TriggerValue: p.TriggerValue,
		Price:        p.Price,
		Bias:         string(p.Bias),
		ChartURL:     p.ChartURL,
		TriggeredAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}

	w.logger.Debug("sent alert", zap.String("symbol", p.Symbol), zap.String("trigger", body.Trigger))
	return nil
}
