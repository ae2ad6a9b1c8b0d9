// Package discovery finds candidate pools for a token and checks a pool's
// token pair.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com/latest/dex"
	DefaultChain          = "bsc"
	DefaultTopPairs       = 12
)

// HTTPDoer abstracts http.Client for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pair is one DexScreener market for a token.
type Pair struct {
	Chain        string
	DEX          string
	PairAddress  string
	BaseSymbol   string
	QuoteSymbol  string
	LiquidityUSD decimal.Decimal
	Volume24h    decimal.Decimal
}

type dexScreenerResponse struct {
	Pairs []struct {
		ChainID     string `json:"chainId"`
		DexID       string `json:"dexId"`
		PairAddress string `json:"pairAddress"`
		BaseToken   struct {
			Symbol string `json:"symbol"`
		} `json:"baseToken"`
		QuoteToken struct {
			Symbol string `json:"symbol"`
		} `json:"quoteToken"`
		Liquidity *struct {
			USD decimal.NullDecimal `json:"usd"`
		} `json:"liquidity"`
		Volume *struct {
			H24 decimal.NullDecimal `json:"h24"`
		} `json:"volume"`
	} `json:"pairs"`
}

type DexScreener struct {
	client  HTTPDoer
	baseURL string
}

func NewDexScreener(client HTTPDoer, baseURL string) *DexScreener {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &DexScreener{client: client, baseURL: baseURL}
}

// Pairs returns the token's pairs on chain, ordered by liquidity and then 24h
// volume, both descending.
func (d *DexScreener) Pairs(ctx context.Context, token, chain string) ([]Pair, error) {
	if chain == "" {
		chain = DefaultChain
	}
	endpoint := d.baseURL + "/tokens/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dexscreener: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("dexscreener: decode: %w", err)
	}

	pairs := make([]Pair, 0, len(payload.Pairs))
	for _, p := range payload.Pairs {
		if p.ChainID != chain {
			continue
		}
		pair := Pair{
			Chain:        p.ChainID,
			DEX:          p.DexID,
			PairAddress:  p.PairAddress,
			BaseSymbol:   p.BaseToken.Symbol,
			QuoteSymbol:  p.QuoteToken.Symbol,
			LiquidityUSD: decimal.Zero,
			Volume24h:    decimal.Zero,
		}
		if p.Liquidity != nil && p.Liquidity.USD.Valid {
			pair.LiquidityUSD = p.Liquidity.USD.Decimal
		}
		if p.Volume != nil && p.Volume.H24.Valid {
			pair.Volume24h = p.Volume.H24.Decimal
		}
		pairs = append(pairs, pair)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if c := pairs[i].LiquidityUSD.Cmp(pairs[j].LiquidityUSD); c != 0 {
			return c > 0
		}
		return pairs[i].Volume24h.GreaterThan(pairs[j].Volume24h)
	})
	return pairs, nil
}
