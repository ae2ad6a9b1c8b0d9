package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix = "SWAPWATCH"

	DefaultQuoteToken = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c" // WBNB
)

// Config holds the run command settings loaded from flags, env, or config file.
type Config struct {
	RPCURL string
	WSURL  string
	Pool   common.Address
	Target *common.Address
	Quote  common.Address

	QuoteAsset      string
	PriceURL        string
	PriceInterval   time.Duration
	InitialQuoteUSD decimal.Decimal
	AlertUSD        decimal.Decimal

	Ledger        string
	JSONL         string
	WatermarkFile string
	PGDSN         string

	Lookback       uint64
	WindowSize     uint64
	PollInterval   time.Duration
	PollErrorDelay time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration

	Dedupe     string
	DedupeSize int
	DedupeTTL  time.Duration
	RedisAddr  string

	NATSURL     string
	NATSSubject string
	MetricsAddr string
	LogLevel    string
}

// newViper layers defaults, flags, env (SWAPWATCH_*) and an optional config
// file, the same way for every command.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]any) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

// Load merges config file, environment variables, and flags into Config and
// validates it.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"quote-token":       DefaultQuoteToken,
		"quote-asset":       "binancecoin",
		"price-url":         "https://api.coingecko.com/api/v3",
		"price-interval":    60 * time.Second,
		"initial-quote-usd": "0",
		"alert-usd":         "1000",
		"ledger":            "./swaps.csv",
		"lookback":          uint64(800),
		"window-size":       uint64(500),
		"poll-interval":     3 * time.Second,
		"poll-error-delay":  5 * time.Second,
		"max-retries":       3,
		"retry-backoff":     500 * time.Millisecond,
		"dedupe":            "memory",
		"dedupe-size":       4096,
		"dedupe-ttl":        time.Hour,
		"nats-subject":      "swapwatch.alerts",
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RPCURL:         strings.TrimSpace(v.GetString("rpc")),
		WSURL:          strings.TrimSpace(v.GetString("ws")),
		QuoteAsset:     v.GetString("quote-asset"),
		PriceURL:       v.GetString("price-url"),
		PriceInterval:  v.GetDuration("price-interval"),
		Ledger:         v.GetString("ledger"),
		JSONL:          v.GetString("jsonl"),
		WatermarkFile:  v.GetString("watermark-file"),
		PGDSN:          v.GetString("pg-dsn"),
		Lookback:       v.GetUint64("lookback"),
		WindowSize:     v.GetUint64("window-size"),
		PollInterval:   v.GetDuration("poll-interval"),
		PollErrorDelay: v.GetDuration("poll-error-delay"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		Dedupe:         strings.ToLower(strings.TrimSpace(v.GetString("dedupe"))),
		DedupeSize:     v.GetInt("dedupe-size"),
		DedupeTTL:      v.GetDuration("dedupe-ttl"),
		RedisAddr:      v.GetString("redis-addr"),
		NATSURL:        v.GetString("nats-url"),
		NATSSubject:    v.GetString("nats-subject"),
		MetricsAddr:    v.GetString("metrics-addr"),
		LogLevel:       v.GetString("log-level"),
	}

	if cfg.RPCURL == "" {
		return Config{}, fmt.Errorf("rpc is required")
	}
	if cfg.Pool, err = parseAddress("pool", v.GetString("pool"), true); err != nil {
		return Config{}, err
	}
	if cfg.Quote, err = parseAddress("quote-token", v.GetString("quote-token"), false); err != nil {
		return Config{}, err
	}
	if raw := strings.TrimSpace(v.GetString("target-token")); raw != "" {
		target, err := parseAddress("target-token", raw, true)
		if err != nil {
			return Config{}, err
		}
		cfg.Target = &target
	}
	if cfg.InitialQuoteUSD, err = parseDecimal("initial-quote-usd", v.GetString("initial-quote-usd")); err != nil {
		return Config{}, err
	}
	if cfg.AlertUSD, err = parseDecimal("alert-usd", v.GetString("alert-usd")); err != nil {
		return Config{}, err
	}

	switch cfg.Dedupe {
	case "memory", "none":
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("redis-addr is required for dedupe=redis")
		}
	default:
		return Config{}, fmt.Errorf("unknown dedupe backend %q", cfg.Dedupe)
	}

	return cfg, nil
}

func parseAddress(key, raw string, required bool) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", key)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address: %s", key, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseDecimal(key, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
