package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "swapwatch",
		Short:        "Watch an AMM pool's swaps and flag large trades",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Stream, normalize and record the pool's swaps",
		RunE:  runWatch,
	}

	runCmd.Flags().String("rpc", "", "HTTP RPC URL")
	runCmd.Flags().String("ws", "", "websocket RPC URL for the push channel (optional)")
	runCmd.Flags().String("pool", "", "pool contract address")
	runCmd.Flags().String("target-token", "", "focus token address (defaults to token0)")
	runCmd.Flags().String("quote-token", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", "USD-priced quote token address")
	runCmd.Flags().String("quote-asset", "binancecoin", "price feed asset id of the quote token")
	runCmd.Flags().String("price-url", "https://api.coingecko.com/api/v3", "price feed base URL")
	runCmd.Flags().Duration("price-interval", 60*time.Second, "price refresh interval")
	runCmd.Flags().String("initial-quote-usd", "0", "quote USD price used until the first successful fetch")
	runCmd.Flags().String("alert-usd", "1000", "USD threshold for large trade alarms (inclusive)")
	runCmd.Flags().String("ledger", "./swaps.csv", "CSV ledger path")
	runCmd.Flags().String("jsonl", "", "optional JSONL mirror path")
	runCmd.Flags().Uint64("lookback", 800, "blocks scanned before the head on startup")
	runCmd.Flags().Uint64("window-size", 500, "blocks per log query (max 500)")
	runCmd.Flags().Duration("poll-interval", 3*time.Second, "delay between successful poll cycles")
	runCmd.Flags().Duration("poll-error-delay", 5*time.Second, "delay after a failed poll cycle")
	runCmd.Flags().Int("max-retries", 3, "startup head fetch retries")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("watermark-file", "", "persist the poll watermark to this file")
	runCmd.Flags().String("dedupe", "memory", "duplicate suppression: memory, redis or none")
	runCmd.Flags().Int("dedupe-size", 4096, "memory dedupe capacity")
	runCmd.Flags().Duration("dedupe-ttl", time.Hour, "dedupe entry lifetime")
	runCmd.Flags().String("redis-addr", "", "redis address for dedupe=redis")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the swaps mirror and watermark")
	runCmd.Flags().String("nats-url", "", "NATS URL for alert fan-out")
	runCmd.Flags().String("nats-subject", "swapwatch.alerts", "NATS subject for alerts")
	runCmd.Flags().String("metrics-addr", "", "listen address for /metrics (e.g. :9102)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "List candidate pools for a token",
		RunE:  runDiscover,
	}

	discoverCmd.Flags().String("token", "", "token address")
	discoverCmd.Flags().String("source", "dexscreener", "discovery source: dexscreener or logs")
	discoverCmd.Flags().String("rpc", "", "HTTP RPC URL (source=logs)")
	discoverCmd.Flags().String("quote-token", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", "paired token (source=logs)")
	discoverCmd.Flags().String("chain", "bsc", "DexScreener chain id")
	discoverCmd.Flags().String("api-url", "https://api.dexscreener.com/latest/dex", "DexScreener API base URL")
	discoverCmd.Flags().Uint64("blocks", 5000, "blocks to scan back from the head (source=logs)")
	discoverCmd.Flags().Uint64("step", 800, "blocks per log query (source=logs)")
	discoverCmd.Flags().Int("top", 12, "pairs to print (source=dexscreener)")
	discoverCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(discoverCmd)

	checkCmd := &cobra.Command{
		Use:   "check-pool",
		Short: "Verify a pool trades the expected token pair",
		RunE:  runCheckPool,
	}

	checkCmd.Flags().String("rpc", "", "HTTP RPC URL")
	checkCmd.Flags().String("pool", "", "pool contract address")
	checkCmd.Flags().String("token", "", "expected token address")
	checkCmd.Flags().String("quote-token", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", "expected paired token address")
	checkCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(checkCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
