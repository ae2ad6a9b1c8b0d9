package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Decode modes reported on normalized swaps.
const (
	ModeV3         = "V3"
	ModeV2         = "V2"
	ModeV3Fallback = "V3*"
)

// Strategy names carried by V3Delta.
const (
	StrategyStandard = "standard"
	StrategyFallback = "fallback"
)

// DecodedSwap is implemented by V3Delta and V2InOut only.
type DecodedSwap interface {
	Mode() string
}

// V3Delta is a swap reported as pool-relative signed deltas
// (positive means the pool balance of that token increased).
type V3Delta struct {
	Sender    common.Address
	Recipient common.Address
	Amount0   *big.Int
	Amount1   *big.Int
	Strategy  string
}

func (s V3Delta) Mode() string {
	if s.Strategy == StrategyFallback {
		return ModeV3Fallback
	}
	return ModeV3
}

// V2InOut is a swap reported as explicit in/out amounts per token.
type V2InOut struct {
	Sender     common.Address
	Recipient  common.Address
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

func (s V2InOut) Mode() string {
	return ModeV2
}

// NormalizedSwap is a trade expressed from the trader's side of the focus token.
type NormalizedSwap struct {
	Side        string          `json:"side"`
	AmountFocus decimal.Decimal `json:"amount_focus"`
	AmountOther decimal.Decimal `json:"amount_other"`
	USDEstimate decimal.Decimal `json:"usd_estimate"`
	Sender      common.Address  `json:"sender"`
	Recipient   common.Address  `json:"recipient"`
	DecodeMode  string          `json:"decode_mode"`
	Timestamp   int64           `json:"timestamp"`
	TxHash      common.Hash     `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number"`
	LogIndex    uint            `json:"log_index"`
}

// IsBuy reports whether the trader received the focus token.
func (s NormalizedSwap) IsBuy() bool {
	return len(s.Side) > 4 && s.Side[:4] == "BUY_"
}
