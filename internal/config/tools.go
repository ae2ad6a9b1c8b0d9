package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// DiscoverConfig holds settings for the discover command.
type DiscoverConfig struct {
	RPCURL   string
	Source   string
	Token    common.Address
	Quote    common.Address
	Chain    string
	APIURL   string
	Blocks   uint64
	Step     uint64
	Top      int
	LogLevel string
}

// LoadDiscover merges config file, environment variables, and flags into
// DiscoverConfig.
func LoadDiscover(cfgFile string, flags *pflag.FlagSet) (DiscoverConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"source":      "dexscreener",
		"quote-token": DefaultQuoteToken,
		"chain":       "bsc",
		"api-url":     "https://api.dexscreener.com/latest/dex",
		"blocks":      uint64(5000),
		"step":        uint64(800),
		"top":         12,
	})
	if err != nil {
		return DiscoverConfig{}, err
	}

	cfg := DiscoverConfig{
		RPCURL:   strings.TrimSpace(v.GetString("rpc")),
		Source:   strings.ToLower(strings.TrimSpace(v.GetString("source"))),
		Chain:    v.GetString("chain"),
		APIURL:   v.GetString("api-url"),
		Blocks:   v.GetUint64("blocks"),
		Step:     v.GetUint64("step"),
		Top:      v.GetInt("top"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.Token, err = parseAddress("token", v.GetString("token"), true); err != nil {
		return DiscoverConfig{}, err
	}
	if cfg.Quote, err = parseAddress("quote-token", v.GetString("quote-token"), false); err != nil {
		return DiscoverConfig{}, err
	}

	switch cfg.Source {
	case "dexscreener":
	case "logs":
		if cfg.RPCURL == "" {
			return DiscoverConfig{}, fmt.Errorf("rpc is required for source=logs")
		}
		if cfg.Quote == (common.Address{}) {
			return DiscoverConfig{}, fmt.Errorf("quote-token is required for source=logs")
		}
	default:
		return DiscoverConfig{}, fmt.Errorf("unknown discover source %q", cfg.Source)
	}
	return cfg, nil
}

// CheckPoolConfig holds settings for the check-pool command.
type CheckPoolConfig struct {
	RPCURL   string
	Pool     common.Address
	Token    common.Address
	Quote    common.Address
	LogLevel string
}

func LoadCheckPool(cfgFile string, flags *pflag.FlagSet) (CheckPoolConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"quote-token": DefaultQuoteToken,
	})
	if err != nil {
		return CheckPoolConfig{}, err
	}

	cfg := CheckPoolConfig{
		RPCURL:   strings.TrimSpace(v.GetString("rpc")),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.RPCURL == "" {
		return CheckPoolConfig{}, fmt.Errorf("rpc is required")
	}
	if cfg.Pool, err = parseAddress("pool", v.GetString("pool"), true); err != nil {
		return CheckPoolConfig{}, err
	}
	if cfg.Token, err = parseAddress("token", v.GetString("token"), true); err != nil {
		return CheckPoolConfig{}, err
	}
	if cfg.Quote, err = parseAddress("quote-token", v.GetString("quote-token"), true); err != nil {
		return CheckPoolConfig{}, err
	}
	return cfg, nil
}
