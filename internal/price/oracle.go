// Package price keeps a periodically refreshed USD price of the quote asset.
package price

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swapwatch/internal/metrics"
)

const DefaultInterval = 60 * time.Second

// Feed returns the current USD price of the quote asset.
type Feed interface {
	FetchUSD(ctx context.Context) (decimal.Decimal, error)
}

// Snapshot is an immutable price reading.
type Snapshot struct {
	QuoteUSD  decimal.Decimal
	FetchedAt time.Time
}

// Oracle holds the latest Snapshot. Refresh is the only writer; readers
// never block.
type Oracle struct {
	feed     Feed
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	current atomic.Pointer[Snapshot]
}

type Option func(*Oracle)

// WithSeed sets the price used until the first successful fetch.
func WithSeed(usd decimal.Decimal) Option {
	return func(o *Oracle) {
		if usd.IsPositive() {
			o.current.Store(&Snapshot{QuoteUSD: usd})
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

func NewOracle(feed Feed, interval time.Duration, logger *zap.Logger, opts ...Option) *Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	o := &Oracle{feed: feed, interval: interval, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the latest reading, zero-valued before any price is known.
func (o *Oracle) Snapshot() Snapshot {
	if s := o.current.Load(); s != nil {
		return *s
	}
	return Snapshot{QuoteUSD: decimal.Zero}
}

// QuoteUSD returns the latest price, or zero when none is known.
func (o *Oracle) QuoteUSD() decimal.Decimal {
	return o.Snapshot().QuoteUSD
}

// Refresh fetches one price. On failure the previous snapshot is kept.
func (o *Oracle) Refresh(ctx context.Context) error {
	usd, err := o.feed.FetchUSD(ctx)
	if err != nil {
		o.logger.Warn("price refresh failed", zap.Error(err), zap.String("kept", o.QuoteUSD().String()))
		return err
	}
	o.current.Store(&Snapshot{QuoteUSD: usd, FetchedAt: o.now()})
	o.metrics.SetQuoteUSD(usd)
	o.logger.Debug("price refreshed", zap.String("usd", usd.String()))
	return nil
}

// Start refreshes once synchronously, then every interval in the background
// until ctx is done.
func (o *Oracle) Start(ctx context.Context) {
	_ = o.Refresh(ctx)

	go func() {
		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = o.Refresh(ctx)
			}
		}
	}()
}
