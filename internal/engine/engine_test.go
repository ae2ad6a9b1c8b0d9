package engine

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"swapwatch/internal/alert"
	"swapwatch/internal/dedupe"
	"swapwatch/internal/dex"
	"swapwatch/internal/ledger"
	"swapwatch/internal/model"
)

var (
	testPool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSender = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testTo     = common.HexToAddress("0x3333333333333333333333333333333333333333")
	fixedNow   = time.Unix(1_700_000_000, 0)
)

type fixedPrice decimal.Decimal

func (p fixedPrice) QuoteUSD() decimal.Decimal { return decimal.Decimal(p) }

type memorySink struct {
	mu    sync.Mutex
	swaps []model.NormalizedSwap
	err   error
}

func (s *memorySink) Append(_ context.Context, swap model.NormalizedSwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swaps = append(s.swaps, swap)
	return s.err
}

type memoryNotifier struct {
	alerts []alert.Alert
}

func (n *memoryNotifier) Notify(_ context.Context, a alert.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}

type failingDeduper struct{}

func (failingDeduper) Seen(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func fooMeta() model.PoolMetadata {
	return model.PoolMetadata{
		Address: testPool,
		Tokens: [2]model.TokenMeta{
			{Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Symbol: "FOO", Decimals: 18},
			{Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Symbol: "WBNB", Decimals: 18},
		},
		FocusIndex: 0,
		QuoteIndex: 1,
	}
}

func tokens(whole, tenths int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole*10+tenths), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func v2Log(t *testing.T, tx string, in0, in1, out0, out1 *big.Int) types.Log {
	t.Helper()
	parsed, err := dex.V2PairABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := parsed.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(in0, in1, out0, out1)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     testPool,
		Topics:      []common.Hash{event.ID, addressTopic(testSender), addressTopic(testTo)},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash(tx),
		Index:       2,
	}
}

func v3Log(t *testing.T, topic0 *common.Hash, tx string, amount0, amount1 *big.Int) types.Log {
	t.Helper()
	parsed, err := dex.V3PoolABI()
	if err != nil {
		t.Fatalf("abi: %v", err)
	}
	event := parsed.Events["Swap"]
	data, err := event.Inputs.NonIndexed().Pack(amount0, amount1, big.NewInt(1), big.NewInt(1), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	id := event.ID
	if topic0 != nil {
		id = *topic0
	}
	return types.Log{
		Address:     testPool,
		Topics:      []common.Hash{id, addressTopic(testSender), addressTopic(testTo)},
		Data:        data,
		BlockNumber: 101,
		TxHash:      common.HexToHash(tx),
		Index:       0,
	}
}

func newEngine(t *testing.T, threshold int64, opts ...Option) *Engine {
	t.Helper()
	decoder, err := dex.NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(fooMeta(), decoder, fixedPrice(decimal.NewFromInt(550)), alert.NewPolicy(decimal.NewFromInt(threshold)), nil, opts...)
}

func TestEngineV2BuyToLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.csv")
	l, err := ledger.Open(path, "FOO", "WBNB")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	notifier := &memoryNotifier{}
	e := newEngine(t, 100, WithSinks(l), WithNotifiers(notifier))

	e.HandleLog(context.Background(), model.ChannelPoll, v2Log(t, "0xa1", big.NewInt(0), tokens(0, 2), tokens(100, 0), big.NewInt(0)))
	_ = l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", data)
	}
	want := strings.Join([]string{
		"1700000000",
		common.HexToHash("0xa1").Hex(),
		"BUY_FOO",
		"100.000000",
		"0.200000",
		"110.00",
		testSender.Hex(),
		testTo.Hex(),
	}, ",")
	if lines[1] != want {
		t.Fatalf("row mismatch:\n%s\n%s", lines[1], want)
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0].Side != "BUY_FOO" {
		t.Fatalf("expected one alarm, got %+v", notifier.alerts)
	}
}

func TestEngineV3Sell(t *testing.T) {
	sink := &memorySink{}
	notifier := &memoryNotifier{}
	e := newEngine(t, 1000, WithSinks(sink), WithNotifiers(notifier))

	e.HandleLog(context.Background(), model.ChannelPush, v3Log(t, nil, "0xb1", tokens(50, 0), new(big.Int).Neg(tokens(0, 1))))

	if len(sink.swaps) != 1 {
		t.Fatalf("expected one swap, got %d", len(sink.swaps))
	}
	got := sink.swaps[0]
	if got.Side != "SELL_FOO" || got.AmountFocus.StringFixed(6) != "50.000000" || got.AmountOther.StringFixed(6) != "0.100000" {
		t.Fatalf("swap mismatch: %+v", got)
	}
	if got.USDEstimate.StringFixed(2) != "55.00" || got.DecodeMode != model.ModeV3 {
		t.Fatalf("usd/mode mismatch: %s %s", got.USDEstimate, got.DecodeMode)
	}
	if got.BlockNumber != 101 || got.Timestamp != fixedNow.Unix() {
		t.Fatalf("coordinates mismatch: %+v", got)
	}
	if len(notifier.alerts) != 0 {
		t.Fatalf("expected no alarm below threshold")
	}
}

func TestEngineFallbackMode(t *testing.T) {
	sink := &memorySink{}
	e := newEngine(t, 1000, WithSinks(sink))
	proxy := common.HexToHash("0x1234")

	e.HandleLog(context.Background(), model.ChannelPoll, v3Log(t, &proxy, "0xc1", big.NewInt(-5), big.NewInt(7)))

	if len(sink.swaps) != 1 || sink.swaps[0].DecodeMode != model.ModeV3Fallback {
		t.Fatalf("expected one fallback swap, got %+v", sink.swaps)
	}
	if sink.swaps[0].Side != "BUY_FOO" {
		t.Fatalf("side mismatch: %s", sink.swaps[0].Side)
	}
}

func TestEngineAlarmInclusive(t *testing.T) {
	notifier := &memoryNotifier{}
	e := newEngine(t, 110, WithNotifiers(notifier))

	e.HandleLog(context.Background(), model.ChannelPoll, v2Log(t, "0xd1", big.NewInt(0), tokens(0, 2), tokens(100, 0), big.NewInt(0)))

	if len(notifier.alerts) != 1 {
		t.Fatalf("usd equal to threshold must alarm")
	}
	if !notifier.alerts[0].USD.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("alarm usd mismatch: %s", notifier.alerts[0].USD)
	}
}

func TestEngineNonSwapIgnored(t *testing.T) {
	sink := &memorySink{}
	e := newEngine(t, 0, WithSinks(sink))

	log := types.Log{Address: testPool, Topics: []common.Hash{common.HexToHash("0x01")}, Data: make([]byte, 32)}
	emitted, err := e.Process(context.Background(), model.ChannelPoll, log)
	if err != nil || emitted {
		t.Fatalf("expected silent skip, emitted=%v err=%v", emitted, err)
	}
	if len(sink.swaps) != 0 {
		t.Fatalf("unexpected swaps: %+v", sink.swaps)
	}
}

func TestEngineDedupeAcrossChannels(t *testing.T) {
	sink := &memorySink{}
	e := newEngine(t, 1000, WithSinks(sink), WithDeduper(dedupe.NewMemoryDedupe(16, time.Hour)))
	log := v2Log(t, "0xe1", big.NewInt(0), tokens(0, 2), tokens(100, 0), big.NewInt(0))

	e.HandleLog(context.Background(), model.ChannelPush, log)
	e.HandleLog(context.Background(), model.ChannelPoll, log)

	if len(sink.swaps) != 1 {
		t.Fatalf("expected one swap after dedupe, got %d", len(sink.swaps))
	}
}

func TestEngineWithoutDedupeEmitsTwice(t *testing.T) {
	sink := &memorySink{}
	e := newEngine(t, 1000, WithSinks(sink))
	log := v2Log(t, "0xe2", big.NewInt(0), tokens(0, 2), tokens(100, 0), big.NewInt(0))

	e.HandleLog(context.Background(), model.ChannelPush, log)
	e.HandleLog(context.Background(), model.ChannelPoll, log)

	if len(sink.swaps) != 2 {
		t.Fatalf("expected duplicate emission, got %d", len(sink.swaps))
	}
}

func TestEngineDedupeFailsOpen(t *testing.T) {
	sink := &memorySink{}
	e := newEngine(t, 1000, WithSinks(sink), WithDeduper(failingDeduper{}))

	e.HandleLog(context.Background(), model.ChannelPoll, v2Log(t, "0xe3", big.NewInt(0), tokens(0, 2), tokens(100, 0), big.NewInt(0)))

	if len(sink.swaps) != 1 {
		t.Fatalf("expected swap despite dedupe error, got %d", len(sink.swaps))
	}
}

func TestEngineSinkErrorDoesNotStopAlarm(t *testing.T) {
	failing := &memorySink{err: errors.New("disk full")}
	healthy := &memorySink{}
	notifier := &memoryNotifier{}
	e := newEngine(t, 1, WithSinks(failing, healthy), WithNotifiers(notifier))

	e.HandleLog(context.Background(), model.ChannelPoll, v2Log(t, "0xf1", big.NewInt(0), tokens(0, 2), tokens(100, 0), big.NewInt(0)))

	if len(healthy.swaps) != 1 || len(notifier.alerts) != 1 {
		t.Fatalf("pipeline stopped after sink error: swaps=%d alerts=%d", len(healthy.swaps), len(notifier.alerts))
	}
}

func TestEngineRecoversPanic(t *testing.T) {
	boom := dex.NewDecoderWith(func(types.Log) (model.DecodedSwap, bool) {
		panic("malformed payload")
	})
	sink := &memorySink{}
	e := New(fooMeta(), boom, fixedPrice(decimal.NewFromInt(1)), alert.NewPolicy(decimal.NewFromInt(1)), nil, WithSinks(sink))

	e.HandleLog(context.Background(), model.ChannelPush, types.Log{})

	if len(sink.swaps) != 0 {
		t.Fatalf("expected no swaps after panic")
	}
}
