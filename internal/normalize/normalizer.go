// Package normalize turns decoded swaps into trader-side BUY/SELL records of
// the pool's focus token.
package normalize

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"swapwatch/internal/model"
)

const (
	sideBuy  = "BUY_"
	sideSell = "SELL_"
)

// Normalize converts a decoded swap into a NormalizedSwap. It is a pure
// function of its inputs; callers stamp timestamp and log coordinates.
func Normalize(swap model.DecodedSwap, meta model.PoolMetadata, quoteUSD decimal.Decimal) (model.NormalizedSwap, error) {
	if meta.FocusIndex != 0 && meta.FocusIndex != 1 {
		return model.NormalizedSwap{}, fmt.Errorf("invalid focus index %d", meta.FocusIndex)
	}

	var (
		out    model.NormalizedSwap
		deltas [2]*big.Int
		buy    bool
	)

	switch s := swap.(type) {
	case model.V3Delta:
		if s.Amount0 == nil || s.Amount1 == nil {
			return model.NormalizedSwap{}, fmt.Errorf("incomplete v3 swap")
		}
		deltas = [2]*big.Int{s.Amount0, s.Amount1}
		// Negative pool delta: the pool paid the focus token out to the trader.
		buy = deltas[meta.FocusIndex].Sign() < 0
		out.Sender, out.Recipient = s.Sender, s.Recipient
	case model.V2InOut:
		if s.Amount0In == nil || s.Amount1In == nil || s.Amount0Out == nil || s.Amount1Out == nil {
			return model.NormalizedSwap{}, fmt.Errorf("incomplete v2 swap")
		}
		deltas = [2]*big.Int{
			new(big.Int).Sub(s.Amount0Out, s.Amount0In),
			new(big.Int).Sub(s.Amount1Out, s.Amount1In),
		}
		// A zero net focus amount is reported as SELL.
		buy = deltas[meta.FocusIndex].Sign() > 0
		out.Sender, out.Recipient = s.Sender, s.Recipient
	default:
		return model.NormalizedSwap{}, fmt.Errorf("unsupported swap type %T", swap)
	}

	focus, other := meta.FocusIndex, 1-meta.FocusIndex
	amounts := [2]decimal.Decimal{
		ScaleAmount(deltas[0], meta.Tokens[0].Decimals).Abs(),
		ScaleAmount(deltas[1], meta.Tokens[1].Decimals).Abs(),
	}

	if buy {
		out.Side = sideBuy + meta.Focus().Symbol
	} else {
		out.Side = sideSell + meta.Focus().Symbol
	}
	out.AmountFocus = amounts[focus]
	out.AmountOther = amounts[other]
	out.USDEstimate = decimal.Zero
	if meta.HasQuote() {
		out.USDEstimate = quoteUSD.Mul(amounts[meta.QuoteIndex])
	}
	out.DecodeMode = swap.Mode()

	return out, nil
}

// ScaleAmount converts a raw integer token amount into token units.
func ScaleAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
