package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swapwatch/internal/chain"
	"swapwatch/internal/config"
	"swapwatch/internal/discovery"
)

func runCheckPool(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadCheckPool(cfgFile, cmd.Flags())
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

	check, err := discovery.CheckPool(ctx, chainClient, cfg.Pool, cfg.Token, cfg.Quote, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "pool:   %s\n", check.Pool.Hex())
	fmt.Fprintf(out, "token0: %s %s (%d decimals)\n", check.Token0.Address.Hex(), check.Token0.Symbol, check.Token0.Decimals)
	fmt.Fprintf(out, "token1: %s %s (%d decimals)\n", check.Token1.Address.Hex(), check.Token1.Symbol, check.Token1.Decimals)
	if !check.Matches {
		return fmt.Errorf("pool %s does not pair %s with %s", check.Pool.Hex(), cfg.Token.Hex(), cfg.Quote.Hex())
	}
	fmt.Fprintln(out, "ok: pair matches")
	return nil
}
