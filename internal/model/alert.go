package model

// AlertTrigger is the tagged union of ways an alert can fire.
type AlertTrigger struct {
	Kind      AlertTriggerKind `json:"kind"`
	Level     int              `json:"level,omitempty"`     // LevelCross only
	Direction string           `json:"direction,omitempty"` // LevelCross only: "up" | "down"
	Zone      string           `json:"zone,omitempty"`      // Reversal only: "oversold" | "overbought"
}

type AlertTriggerKind string

const (
	AlertTriggerLevelCross AlertTriggerKind = "level_cross"
	AlertTriggerReversal   AlertTriggerKind = "reversal"
)

// Label renders the trigger as a short machine-readable string, e.g.
// "level_-250", "reversal_oversold", "reversal_overbought".
func (t AlertTrigger) Label() string {
	switch t.Kind {
	case AlertTriggerLevelCross:
		if t.Level > 0 {
			return "level_+" + itoa(t.Level)
		}
		return "level_" + itoa(t.Level)
	case AlertTriggerReversal:
		return "reversal_" + t.Zone
	default:
		return "unknown"
	}
}

func itoa(n int) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// AlertRecord is the immutable, persisted representation of a triggered
// alert.
type AlertRecord struct {
	ID                string         `json:"id"`
	ExchangeID        string         `json:"exchangeId"`
	Symbol            string         `json:"symbol"`
	Timeframe         Timeframe      `json:"timeframe"`
	AlertType         string         `json:"alertType"` // always "macdv"
	TriggeredAt       int64          `json:"triggeredAt"`
	Price             float64        `json:"price"`
	TriggerValue      float64        `json:"triggerValue"`
	TriggerLabel      string         `json:"triggerLabel"`
	PreviousLabel     string         `json:"previousLabel,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
	ChartGenerated    bool           `json:"chartGenerated"`
	NotificationSent  bool           `json:"notificationSent"`
	NotificationError string         `json:"notificationError,omitempty"`
}

const AlertTypeMACDV = "macdv"

// AlertPubSubPayload is published on the per-exchange alert channel for
// cross-exchange observers.
type AlertPubSubPayload struct {
	ID                 string    `json:"id"`
	Symbol             string    `json:"symbol"`
	AlertType          string    `json:"alertType"`
	Timeframe          Timeframe `json:"timeframe"`
	Price              float64   `json:"price"`
	TriggerValue       float64   `json:"triggerValue"`
	SignalDelta        float64   `json:"signalDelta"`
	TriggeredAt        string    `json:"triggeredAt"` // ISO-8601
	SourceExchangeID   string    `json:"sourceExchangeId"`
	SourceExchangeName string    `json:"sourceExchangeName"`
	TriggerLabel       string    `json:"triggerLabel"`
}

// Bias is the multi-timeframe sentiment summary computed on alert emit.
type Bias string

const (
	BiasBullish Bias = "Bullish"
	BiasBearish Bias = "Bearish"
	BiasNeutral Bias = "Neutral"
)

// TimeframeWeight is the bias-score weighting per timeframe.
var TimeframeWeight = map[Timeframe]float64{
	TF1m:  1,
	TF5m:  2,
	TF15m: 3,
	TF1h:  4,
	TF4h:  5,
	TF1d:  6,
}

// ClassifyBias scores bullish vs bearish stages across timeframes and
// returns the dominant bias 1.5x thresholds.
func ClassifyBias(stageByTF map[Timeframe]Stage) Bias {
	var bullish, bearish float64
	for tf, stage := range stageByTF {
		w := TimeframeWeight[tf]
		if stage.Bullish() {
			bullish += w
		} else if stage.Bearish() {
			bearish += w
		}
	}
	switch {
	case bullish > 1.5*bearish && bullish > 0:
		return BiasBullish
	case bearish > 1.5*bullish && bearish > 0:
		return BiasBearish
	default:
		return BiasNeutral
	}
}
