package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"
	DefaultAsset        = "binancecoin"
)

// HTTPDoer abstracts http.Client for tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoFeed reads the USD price of one asset from the simple price API.
type CoinGeckoFeed struct {
	client  HTTPDoer
	baseURL string
	asset   string
}

func NewCoinGeckoFeed(client HTTPDoer, baseURL, asset string) *CoinGeckoFeed {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	asset = strings.ToLower(strings.TrimSpace(asset))
	if asset == "" {
		asset = DefaultAsset
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &CoinGeckoFeed{client: client, baseURL: baseURL, asset: asset}
}

func (f *CoinGeckoFeed) FetchUSD(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/simple/price", nil)
	if err != nil {
		return decimal.Zero, err
	}
	values := url.Values{}
	values.Set("ids", f.asset)
	values.Set("vs_currencies", "usd")
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode: %w", err)
	}
	usd, ok := payload[f.asset]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("coingecko: no usd price for %s", f.asset)
	}
	if !usd.IsPositive() {
		return decimal.Zero, fmt.Errorf("coingecko: invalid price %s", usd)
	}
	return usd, nil
}
