package dex

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	testToken0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testToken1 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

// fakeCaller answers eth_call by contract address and 4-byte selector.
type fakeCaller struct {
	responses map[common.Address]map[string][]byte
	failFirst map[string]int
	calls     int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[common.Address]map[string][]byte),
		failFirst: make(map[string]int),
	}
}

func (f *fakeCaller) set(t *testing.T, to common.Address, parsed abi.ABI, method string, values ...interface{}) {
	t.Helper()
	out, err := parsed.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	if f.responses[to] == nil {
		f.responses[to] = make(map[string][]byte)
	}
	f.responses[to][string(parsed.Methods[method].ID)] = out
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	selector := string(msg.Data[:4])
	key := msg.To.Hex() + selector
	if f.failFirst[key] > 0 {
		f.failFirst[key]--
		return nil, errors.New("execution reverted")
	}
	resp, ok := f.responses[*msg.To][selector]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return resp, nil
}

func poolCaller(t *testing.T) *fakeCaller {
	t.Helper()
	v3, _ := V3PoolABI()
	erc20, _ := erc20ABI.get()

	caller := newFakeCaller()
	caller.set(t, testPool, v3, "token0", testToken0)
	caller.set(t, testPool, v3, "token1", testToken1)
	caller.set(t, testToken0, erc20, "symbol", "FOO")
	caller.set(t, testToken0, erc20, "decimals", uint8(9))
	caller.set(t, testToken1, erc20, "symbol", "WBNB")
	caller.set(t, testToken1, erc20, "decimals", uint8(18))
	return caller
}

func TestResolvePool(t *testing.T) {
	caller := poolCaller(t)

	meta, err := ResolvePool(context.Background(), caller, testPool, ResolveOptions{Quote: testToken1}, zap.NewNop())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Tokens[0].Symbol != "FOO" || meta.Tokens[0].Decimals != 9 {
		t.Fatalf("token0 mismatch: %+v", meta.Tokens[0])
	}
	if meta.Tokens[1].Symbol != "WBNB" || meta.Tokens[1].Decimals != 18 {
		t.Fatalf("token1 mismatch: %+v", meta.Tokens[1])
	}
	if meta.FocusIndex != 0 || meta.QuoteIndex != 1 {
		t.Fatalf("index mismatch: focus=%d quote=%d", meta.FocusIndex, meta.QuoteIndex)
	}
}

func TestResolvePoolFocus(t *testing.T) {
	caller := poolCaller(t)

	target := testToken1
	meta, err := ResolvePool(context.Background(), caller, testPool, ResolveOptions{Target: &target}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.FocusIndex != 1 {
		t.Fatalf("expected focus 1, got %d", meta.FocusIndex)
	}
	if meta.QuoteIndex != -1 {
		t.Fatalf("expected no quote, got %d", meta.QuoteIndex)
	}

	other := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	meta, err = ResolvePool(context.Background(), caller, testPool, ResolveOptions{Target: &other}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.FocusIndex != 0 {
		t.Fatalf("expected focus fallback to token0, got %d", meta.FocusIndex)
	}
}

func TestResolvePoolRetriesSecondLayout(t *testing.T) {
	caller := poolCaller(t)
	v3, _ := V3PoolABI()
	caller.failFirst[testPool.Hex()+string(v3.Methods["token1"].ID)] = 1

	meta, err := ResolvePool(context.Background(), caller, testPool, ResolveOptions{}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if meta.Tokens[1].Address != testToken1 {
		t.Fatalf("token1 mismatch: %s", meta.Tokens[1].Address.Hex())
	}
}

func TestResolvePoolFatal(t *testing.T) {
	caller := newFakeCaller()
	if _, err := ResolvePool(context.Background(), caller, testPool, ResolveOptions{}, nil); err == nil {
		t.Fatalf("expected error when pool exposes no token accessors")
	}
}

func TestFetchTokenMetaDefaults(t *testing.T) {
	caller := newFakeCaller()
	meta := FetchTokenMeta(context.Background(), caller, testToken0, nil)
	if !strings.EqualFold(meta.Symbol, "0xaaaa") || meta.Symbol != ShortSymbol(testToken0) {
		t.Fatalf("symbol fallback mismatch: %s", meta.Symbol)
	}
	if meta.Decimals != DefaultDecimals {
		t.Fatalf("decimals fallback mismatch: %d", meta.Decimals)
	}
}

func TestFetchTokenMetaBytes32Symbol(t *testing.T) {
	bytes32ABI, _ := erc20Bytes32SymbolABI.get()
	caller := newFakeCaller()
	var symbol [32]byte
	copy(symbol[:], "MKR")
	caller.set(t, testToken0, bytes32ABI, "symbol", symbol)
	caller.failFirst[testToken0.Hex()+string(bytes32ABI.Methods["symbol"].ID)] = 1

	meta := FetchTokenMeta(context.Background(), caller, testToken0, nil)
	if meta.Symbol != "MKR" {
		t.Fatalf("symbol mismatch: %q", meta.Symbol)
	}
}
