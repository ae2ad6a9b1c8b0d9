// Package engine runs the per-log pipeline shared by the push and poll
// channels: decode, normalize, dedupe, emit, alarm.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapwatch/internal/alert"
	"swapwatch/internal/dedupe"
	"swapwatch/internal/dex"
	"swapwatch/internal/metrics"
	"swapwatch/internal/model"
	"swapwatch/internal/normalize"
	"swapwatch/internal/storage"
)

// PriceSource supplies the current quote asset USD price.
type PriceSource interface {
	QuoteUSD() decimal.Decimal
}

// Engine is safe for concurrent HandleLog calls as long as its sinks and
// notifiers are.
type Engine struct {
	meta      model.PoolMetadata
	decoder   *dex.Decoder
	price     PriceSource
	policy    alert.Policy
	dedupe    dedupe.Deduper
	sinks     []storage.Sink
	notifiers []alert.Notifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithDeduper(d dedupe.Deduper) Option {
	return func(e *Engine) {
		if d != nil {
			e.dedupe = d
		}
	}
}

func WithSinks(sinks ...storage.Sink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

func WithNotifiers(notifiers ...alert.Notifier) Option {
	return func(e *Engine) { e.notifiers = append(e.notifiers, notifiers...) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(meta model.PoolMetadata, decoder *dex.Decoder, price PriceSource, policy alert.Policy, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		meta:    meta,
		decoder: decoder,
		price:   price,
		policy:  policy,
		dedupe:  dedupe.Nop{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleLog processes one raw log. Failures are logged and the log is
// dropped; nothing propagates to the calling channel.
func (e *Engine) HandleLog(ctx context.Context, channel string, log types.Log) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("log processing panicked",
				zap.Any("panic", r),
				zap.String("channel", channel),
				zap.String("tx", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
			)
		}
	}()

	if _, err := e.Process(ctx, channel, log); err != nil {
		e.logger.Warn("log dropped", zap.Error(err), zap.String("channel", channel), zap.String("tx", log.TxHash.Hex()))
	}
}

// Process runs the pipeline and reports whether a swap was emitted.
func (e *Engine) Process(ctx context.Context, channel string, log types.Log) (bool, error) {
	decoded, ok := e.decoder.Decode(log)
	if !ok {
		e.metrics.DecodeMiss()
		return false, nil
	}

	swap, err := normalize.Normalize(decoded, e.meta, e.price.QuoteUSD())
	if err != nil {
		return false, fmt.Errorf("normalize: %w", err)
	}
	swap.Timestamp = e.now().Unix()
	swap.TxHash = log.TxHash
	swap.BlockNumber = log.BlockNumber
	swap.LogIndex = log.Index

	seen, err := e.dedupe.Seen(ctx, dedupe.ID(log.TxHash, log.Index))
	if err != nil {
		e.logger.Warn("dedupe failed, emitting", zap.Error(err), zap.String("tx", log.TxHash.Hex()))
	} else if seen {
		e.metrics.Duplicate()
		e.logger.Debug("duplicate swap", zap.String("channel", channel), zap.String("tx", log.TxHash.Hex()))
		return false, nil
	}

	e.logger.Info("swap",
		zap.String("side", swap.Side),
		zap.String("mode", swap.DecodeMode),
		zap.String("amount_focus", swap.AmountFocus.StringFixed(6)),
		zap.String("amount_other", swap.AmountOther.StringFixed(6)),
		zap.String("usd", swap.USDEstimate.StringFixed(2)),
		zap.String("tx", swap.TxHash.Hex()),
		zap.String("channel", channel),
	)
	e.metrics.SwapEmitted(swap.DecodeMode)

	for _, sink := range e.sinks {
		if err := sink.Append(ctx, swap); err != nil {
			e.logger.Warn("sink append failed", zap.Error(err), zap.String("tx", swap.TxHash.Hex()))
		}
	}

	if a, ok := e.policy.Evaluate(swap); ok {
		e.metrics.Alarm()
		for _, n := range e.notifiers {
			if err := n.Notify(ctx, a); err != nil {
				e.logger.Warn("alert notify failed", zap.Error(err), zap.String("tx", a.TxHash))
			}
		}
	}

	return true, nil
}
