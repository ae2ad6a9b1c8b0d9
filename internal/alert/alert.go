// Package alert flags swaps whose USD estimate reaches a threshold and fans
// the alarm out to notifiers.
package alert

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapwatch/internal/model"
)

// DefaultThresholdUSD is the alarm threshold when none is configured.
var DefaultThresholdUSD = decimal.NewFromInt(1000)

// Alert is a triggered large-trade alarm.
type Alert struct {
	Side        string          `json:"side"`
	AmountFocus decimal.Decimal `json:"amount_focus"`
	USD         decimal.Decimal `json:"usd"`
	Threshold   decimal.Decimal `json:"threshold"`
	TxHash      string          `json:"tx"`
	BlockNumber uint64          `json:"block"`
	Timestamp   int64           `json:"ts"`
}

// Policy is a stateless threshold comparison.
type Policy struct {
	threshold decimal.Decimal
}

func NewPolicy(threshold decimal.Decimal) Policy {
	return Policy{threshold: threshold}
}

func (p Policy) Threshold() decimal.Decimal { return p.threshold }

// Evaluate alarms when usd >= threshold.
func (p Policy) Evaluate(swap model.NormalizedSwap) (Alert, bool) {
	if swap.USDEstimate.LessThan(p.threshold) {
		return Alert{}, false
	}
	return Alert{
		Side:        swap.Side,
		AmountFocus: swap.AmountFocus,
		USD:         swap.USDEstimate,
		Threshold:   p.threshold,
		TxHash:      swap.TxHash.Hex(),
		BlockNumber: swap.BlockNumber,
		Timestamp:   swap.Timestamp,
	}, true
}

// Notifier delivers alarms.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier writes one warn line per alarm.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.logger.Warn("large trade",
		zap.String("side", a.Side),
		zap.String("amount", a.AmountFocus.StringFixed(6)),
		zap.String("usd", a.USD.StringFixed(2)),
		zap.String("tx", a.TxHash),
	)
	return nil
}
