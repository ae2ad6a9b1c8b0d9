package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapwatch/internal/alert"
	"swapwatch/internal/chain"
	"swapwatch/internal/config"
	"swapwatch/internal/dedupe"
	"swapwatch/internal/dex"
	"swapwatch/internal/engine"
	"swapwatch/internal/indexer"
	"swapwatch/internal/ledger"
	"swapwatch/internal/metrics"
	"swapwatch/internal/price"
	"swapwatch/internal/source"
	"swapwatch/internal/storage"
	"swapwatch/internal/storage/postgres"
)

func runWatch(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	meta, err := dex.ResolvePool(ctx, chainClient, cfg.Pool, dex.ResolveOptions{Target: cfg.Target, Quote: cfg.Quote}, logger)
	if err != nil {
		return fmt.Errorf("resolve pool: %w", err)
	}
	logger.Info("pool resolved",
		zap.String("pool", meta.Address.Hex()),
		zap.String("token0", meta.Tokens[0].Symbol),
		zap.Uint8("decimals0", meta.Tokens[0].Decimals),
		zap.String("token1", meta.Tokens[1].Symbol),
		zap.Uint8("decimals1", meta.Tokens[1].Decimals),
		zap.String("focus", meta.Focus().Symbol),
	)
	if !meta.HasQuote() {
		logger.Warn("quote token not in pool, USD estimates will be zero", zap.String("quote", cfg.Quote.Hex()))
	}

	decoder, err := dex.NewDecoder()
	if err != nil {
		return err
	}

	m := metrics.New()

	oracle := price.NewOracle(
		price.NewCoinGeckoFeed(nil, cfg.PriceURL, cfg.QuoteAsset),
		cfg.PriceInterval,
		logger,
		price.WithSeed(cfg.InitialQuoteUSD),
		price.WithMetrics(m),
	)
	oracle.Start(ctx)

	led, err := ledger.Open(cfg.Ledger, meta.Focus().Symbol, meta.Other().Symbol)
	if err != nil {
		return err
	}
	defer led.Close()
	sinks := []storage.Sink{led}
	if cfg.JSONL != "" {
		sinks = append(sinks, storage.NewJsonlSink(cfg.JSONL))
	}

	pollOpts := []indexer.PollerOption{indexer.WithMetrics(m)}
	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN, meta.Address.Hex())
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		pollOpts = append(pollOpts, indexer.WithWatermarkStore(pg.Watermark()))
	}
	if cfg.WatermarkFile != "" {
		pollOpts = append(pollOpts, indexer.WithWatermarkStore(indexer.NewFileWatermarkStore(cfg.WatermarkFile, meta.Address.Hex())))
	}

	deduper, closeDedupe, err := newDeduper(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDedupe()

	notifiers := []alert.Notifier{alert.NewLogNotifier(logger)}
	if cfg.NATSURL != "" {
		natsNotifier, err := alert.NewNATSNotifier(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer natsNotifier.Close()
		notifiers = append(notifiers, natsNotifier)
	}

	eng := engine.New(meta, decoder, oracle, alert.NewPolicy(cfg.AlertUSD), logger,
		engine.WithSinks(sinks...),
		engine.WithNotifiers(notifiers...),
		engine.WithDeduper(deduper),
		engine.WithMetrics(m),
	)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, m.Handler(), logger)
	}

	if cfg.WSURL != "" {
		source.NewPush(cfg.WSURL, meta.Address, eng, logger, m).Start(ctx)
	} else {
		logger.Info("push channel disabled, no ws url")
	}

	poller := indexer.NewPoller(indexer.PollConfig{
		Pool:         meta.Address,
		Lookback:     cfg.Lookback,
		WindowSize:   cfg.WindowSize,
		Interval:     cfg.PollInterval,
		ErrorDelay:   cfg.PollErrorDelay,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, chainClient, eng, logger, pollOpts...)

	logger.Info("swapwatch start",
		zap.String("pool", meta.Address.Hex()),
		zap.String("ledger", led.Path()),
		zap.String("alert_usd", cfg.AlertUSD.String()),
		zap.String("dedupe", cfg.Dedupe),
		zap.Bool("push", cfg.WSURL != ""),
	)

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("swapwatch stopped")
	return nil
}

func newDeduper(ctx context.Context, cfg config.Config) (dedupe.Deduper, func(), error) {
	switch cfg.Dedupe {
	case dedupe.BackendNone:
		return dedupe.Nop{}, func() {}, nil
	case dedupe.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		d, err := dedupe.NewRedisDedupe(client, "", cfg.DedupeTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return d, func() { _ = client.Close() }, nil
	default:
		return dedupe.NewMemoryDedupe(cfg.DedupeSize, cfg.DedupeTTL), func() {}, nil
	}
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
