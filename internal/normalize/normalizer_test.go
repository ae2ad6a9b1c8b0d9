package normalize

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"swapwatch/internal/model"
)

func fooWBNB(focus int) model.PoolMetadata {
	return model.PoolMetadata{
		Address: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Tokens: [2]model.TokenMeta{
			{Address: common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), Symbol: "FOO", Decimals: 18},
			{Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Symbol: "WBNB", Decimals: 18},
		},
		FocusIndex: focus,
		QuoteIndex: 1,
	}
}

func units(whole int64, tenths int64) *big.Int {
	// whole + tenths/10, in 18-decimal base units
	v := new(big.Int).Mul(big.NewInt(whole*10+tenths), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	return v
}

func TestNormalizeV2Buy(t *testing.T) {
	swap := model.V2InOut{
		Amount0In:  big.NewInt(0),
		Amount1In:  units(0, 2),
		Amount0Out: units(100, 0),
		Amount1Out: big.NewInt(0),
	}

	got, err := Normalize(swap, fooWBNB(0), decimal.NewFromInt(550))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Side != "BUY_FOO" {
		t.Fatalf("side mismatch: %s", got.Side)
	}
	if got.AmountFocus.StringFixed(6) != "100.000000" || got.AmountOther.StringFixed(6) != "0.200000" {
		t.Fatalf("amount mismatch: %s %s", got.AmountFocus, got.AmountOther)
	}
	if got.USDEstimate.StringFixed(2) != "110.00" {
		t.Fatalf("usd mismatch: %s", got.USDEstimate)
	}
	if got.DecodeMode != model.ModeV2 {
		t.Fatalf("mode mismatch: %s", got.DecodeMode)
	}
}

func TestNormalizeV3Sell(t *testing.T) {
	swap := model.V3Delta{
		Amount0:  units(50, 0),
		Amount1:  new(big.Int).Neg(units(0, 1)),
		Strategy: model.StrategyStandard,
	}

	got, err := Normalize(swap, fooWBNB(0), decimal.NewFromInt(550))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Side != "SELL_FOO" {
		t.Fatalf("side mismatch: %s", got.Side)
	}
	if got.AmountFocus.StringFixed(6) != "50.000000" || got.AmountOther.StringFixed(6) != "0.100000" {
		t.Fatalf("amount mismatch: %s %s", got.AmountFocus, got.AmountOther)
	}
	if got.USDEstimate.StringFixed(2) != "55.00" {
		t.Fatalf("usd mismatch: %s", got.USDEstimate)
	}
}

func TestNormalizeV3SideFollowsFocusSign(t *testing.T) {
	price := decimal.NewFromInt(1)
	for _, focus := range []int{0, 1} {
		for _, sign := range []int64{-3, 0, 3} {
			amounts := [2]*big.Int{big.NewInt(-sign * 5), big.NewInt(-sign * 5)}
			amounts[focus] = big.NewInt(sign)
			swap := model.V3Delta{Amount0: amounts[0], Amount1: amounts[1]}

			got, err := Normalize(swap, fooWBNB(focus), price)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			symbol := fooWBNB(focus).Focus().Symbol
			want := "SELL_" + symbol
			if sign < 0 {
				want = "BUY_" + symbol
			}
			if got.Side != want {
				t.Fatalf("focus=%d delta=%d: side %s != %s", focus, sign, got.Side, want)
			}
		}
	}
}

func TestNormalizeV2ZeroNetIsSell(t *testing.T) {
	swap := model.V2InOut{
		Amount0In:  big.NewInt(10),
		Amount1In:  big.NewInt(0),
		Amount0Out: big.NewInt(10),
		Amount1Out: big.NewInt(5),
	}
	got, err := Normalize(swap, fooWBNB(0), decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Side != "SELL_FOO" {
		t.Fatalf("expected SELL on zero net, got %s", got.Side)
	}
	if !got.AmountFocus.IsZero() {
		t.Fatalf("expected zero focus amount, got %s", got.AmountFocus)
	}
}

func TestNormalizeFocusToken1(t *testing.T) {
	swap := model.V2InOut{
		Amount0In:  units(100, 0),
		Amount1In:  big.NewInt(0),
		Amount0Out: big.NewInt(0),
		Amount1Out: units(0, 2),
	}
	got, err := Normalize(swap, fooWBNB(1), decimal.NewFromInt(550))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got.Side != "BUY_WBNB" {
		t.Fatalf("side mismatch: %s", got.Side)
	}
	if got.AmountFocus.StringFixed(6) != "0.200000" || got.USDEstimate.StringFixed(2) != "110.00" {
		t.Fatalf("focus/usd mismatch: %s %s", got.AmountFocus, got.USDEstimate)
	}
}

func TestNormalizeNoQuote(t *testing.T) {
	meta := fooWBNB(0)
	meta.QuoteIndex = -1
	swap := model.V3Delta{Amount0: big.NewInt(-1), Amount1: big.NewInt(1)}

	got, err := Normalize(swap, meta, decimal.NewFromInt(550))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !got.USDEstimate.IsZero() {
		t.Fatalf("expected zero usd, got %s", got.USDEstimate)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	swap := model.V3Delta{
		Sender:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Recipient: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Amount0:   big.NewInt(-123456789),
		Amount1:   big.NewInt(987654321),
	}
	first, err := Normalize(swap, fooWBNB(0), decimal.RequireFromString("612.34"))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	second, err := Normalize(swap, fooWBNB(0), decimal.RequireFromString("612.34"))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize not deterministic: %+v != %+v", first, second)
	}
}

func TestNormalizeRejectsIncomplete(t *testing.T) {
	if _, err := Normalize(model.V3Delta{Amount0: big.NewInt(1)}, fooWBNB(0), decimal.Zero); err == nil {
		t.Fatalf("expected error for missing amount1")
	}
	if _, err := Normalize(model.V2InOut{}, fooWBNB(0), decimal.Zero); err == nil {
		t.Fatalf("expected error for empty v2 swap")
	}
}
