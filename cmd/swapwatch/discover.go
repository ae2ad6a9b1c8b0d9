package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapwatch/internal/chain"
	"swapwatch/internal/config"
	"swapwatch/internal/discovery"
)

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDiscover(cfgFile, cmd.Flags())
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

	out := cmd.OutOrStdout()

	if cfg.Source == "logs" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		candidates, err := discovery.ScanPools(ctx, chainClient, discovery.ScanOptions{
			Token:  cfg.Token,
			Quote:  cfg.Quote,
			Blocks: cfg.Blocks,
			Step:   cfg.Step,
		}, logger)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Fprintf(out, "no %s/%s pools with swaps in the last %d blocks\n", cfg.Token.Hex(), cfg.Quote.Hex(), cfg.Blocks)
			return nil
		}
		for _, c := range candidates {
			fmt.Fprintf(out, "%s  swaps=%d\n", c.Address.Hex(), c.Swaps)
		}
		fmt.Fprintf(out, "\nsuggested: swapwatch run --pool %s --target-token %s\n", candidates[0].Address.Hex(), cfg.Token.Hex())
		return nil
	}

	screener := discovery.NewDexScreener(&http.Client{Timeout: 15 * time.Second}, cfg.APIURL)
	pairs, err := screener.Pairs(ctx, cfg.Token.Hex(), cfg.Chain)
	if err != nil {
		return err
	}
	logger.Debug("dexscreener pairs", zap.Int("count", len(pairs)), zap.String("chain", cfg.Chain))
	if len(pairs) == 0 {
		fmt.Fprintf(out, "no %s pairs found for %s\n", cfg.Chain, cfg.Token.Hex())
		return nil
	}
	if cfg.Top > 0 && len(pairs) > cfg.Top {
		pairs = pairs[:cfg.Top]
	}
	for _, p := range pairs {
		fmt.Fprintf(out, "%-12s %s  %s/%s  liq=$%s  vol24h=$%s\n",
			p.DEX, p.PairAddress, p.BaseSymbol, p.QuoteSymbol,
			p.LiquidityUSD.StringFixed(0), p.Volume24h.StringFixed(0))
	}
	fmt.Fprintf(out, "\nsuggested: swapwatch run --pool %s --target-token %s\n", pairs[0].PairAddress, cfg.Token.Hex())
	return nil
}
