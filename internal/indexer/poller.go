package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapwatch/internal/metrics"
	"swapwatch/internal/model"
)

const (
	DefaultLookback     uint64 = 800
	DefaultPollInterval        = 3 * time.Second
	DefaultErrorDelay          = 5 * time.Second
)

// LogFetcher is the slice of the chain client the poller needs.
type LogFetcher interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// LogHandler receives every log the poller fetches.
type LogHandler interface {
	HandleLog(ctx context.Context, channel string, log types.Log)
}

// Sleeper pauses between cycles. It returns early with ctx.Err() when the
// context is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PollConfig holds the poll channel settings.
type PollConfig struct {
	Pool         common.Address
	Lookback     uint64
	WindowSize   uint64
	Interval     time.Duration
	ErrorDelay   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Poller scans the pool's logs from a watermark up to the chain head.
type Poller struct {
	cfg     PollConfig
	fetcher LogFetcher
	handler LogHandler
	store   WatermarkStore
	sleeper Sleeper
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu          sync.Mutex
	watermark   uint64
	initialized bool
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

func WithWatermarkStore(store WatermarkStore) PollerOption {
	return func(p *Poller) { p.store = store }
}

func WithSleeper(sleeper Sleeper) PollerOption {
	return func(p *Poller) { p.sleeper = sleeper }
}

func WithMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) { p.metrics = m }
}

// NewPoller builds a Poller with defaults applied to zero config fields.
func NewPoller(cfg PollConfig, fetcher LogFetcher, handler LogHandler, logger *zap.Logger, opts ...PollerOption) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = DefaultLookback
	}
	cfg.WindowSize = ClampWindow(cfg.WindowSize)
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.ErrorDelay <= 0 {
		cfg.ErrorDelay = DefaultErrorDelay
	}

	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		handler: handler,
		sleeper: TimerSleeper{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watermark returns the highest block fully scanned.
func (p *Poller) Watermark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// Init sets the starting watermark to head-lookback, or to the stored
// watermark when one exists and is newer.
func (p *Poller) Init(ctx context.Context) error {
	var head uint64
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = p.fetcher.LatestBlockNumber(ctx)
		if err != nil {
			p.logger.Warn("head fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	start := uint64(0)
	if head > p.cfg.Lookback {
		start = head - p.cfg.Lookback
	}

	if p.store != nil {
		stored, ok, err := p.store.Load(ctx)
		if err != nil {
			p.logger.Warn("load watermark failed", zap.Error(err))
		} else if ok && stored > start {
			p.logger.Info("resume from watermark", zap.Uint64("stored", stored), zap.Uint64("head", head))
			start = stored
		}
	}

	p.mu.Lock()
	p.watermark = start
	p.initialized = true
	p.mu.Unlock()
	p.metrics.SetWatermark(start)

	p.logger.Info("poller initialized", zap.Uint64("head", head), zap.Uint64("watermark", start))
	return nil
}

// RunCycle scans (watermark, head] in windows and hands every log to the
// handler. Failed windows are skipped; the watermark still advances to the
// head observed at the start of the cycle.
func (p *Poller) RunCycle(ctx context.Context) error {
	head, err := p.fetcher.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	from := p.Watermark() + 1
	if head < from {
		return nil
	}

	windows, err := SplitRange(from, head, p.cfg.WindowSize)
	if err != nil {
		return err
	}

	pool := []common.Address{p.cfg.Pool}
	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}

		logs, err := p.fetcher.FilterLogs(ctx, window.From, window.To, pool, nil)
		if err != nil {
			p.metrics.WindowFailed()
			p.logger.Warn("window skipped", zap.Error(err), zap.Uint64("from", window.From), zap.Uint64("to", window.To))
			continue
		}

		for _, log := range logs {
			p.metrics.LogReceived(model.ChannelPoll)
			p.handler.HandleLog(ctx, model.ChannelPoll, log)
		}
	}

	p.mu.Lock()
	p.watermark = head
	p.mu.Unlock()
	p.metrics.SetWatermark(head)

	if p.store != nil {
		if err := p.store.Save(ctx, head); err != nil {
			p.logger.Warn("save watermark failed", zap.Error(err), zap.Uint64("block", head))
		}
	}
	return nil
}

// Run loops RunCycle until ctx is cancelled. It sleeps the poll interval
// after a good cycle and the error delay after a failed one.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()
	if !initialized {
		if err := p.Init(ctx); err != nil {
			return err
		}
	}

	for {
		delay := p.cfg.Interval
		if err := p.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("poll cycle failed", zap.Error(err))
			delay = p.cfg.ErrorDelay
		}

		if err := p.sleeper.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
