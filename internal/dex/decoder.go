package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"swapwatch/internal/model"
)

// Strategy attempts one interpretation of a raw log. It reports false when the
// log does not have the shape it expects; it never returns a partial swap.
type Strategy func(log types.Log) (model.DecodedSwap, bool)

// Decoder runs strategies in priority order and keeps the first match.
type Decoder struct {
	strategies []Strategy
}

// NewDecoder builds the standard V3 -> standard V2 -> V3 fallback chain.
func NewDecoder() (*Decoder, error) {
	v3, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse v3 pool abi: %w", err)
	}
	v2, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse v2 pair abi: %w", err)
	}

	v3Swap := v3.Events["Swap"]
	v2Swap := v2.Events["Swap"]

	return NewDecoderWith(
		V3StandardStrategy(v3Swap),
		V2StandardStrategy(v2Swap),
		V3FallbackStrategy(v3Swap, v3Swap.ID, v2Swap.ID),
	), nil
}

// NewDecoderWith builds a decoder from an explicit strategy list.
func NewDecoderWith(strategies ...Strategy) *Decoder {
	return &Decoder{strategies: strategies}
}

// Decode returns the first strategy match, or false when the log is not a swap.
func (d *Decoder) Decode(log types.Log) (model.DecodedSwap, bool) {
	for _, strategy := range d.strategies {
		if swap, ok := strategy(log); ok {
			return swap, true
		}
	}
	return nil, false
}

// V3StandardStrategy matches logs carrying the canonical V3 Swap topic.
func V3StandardStrategy(event abi.Event) Strategy {
	return func(log types.Log) (model.DecodedSwap, bool) {
		if len(log.Topics) != 3 || log.Topics[0] != event.ID {
			return nil, false
		}

		var indexed struct {
			Sender    common.Address
			Recipient common.Address
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
			return nil, false
		}

		amount0, amount1, ok := unpackV3Amounts(event, log.Data)
		if !ok {
			return nil, false
		}

		return model.V3Delta{
			Sender:    indexed.Sender,
			Recipient: indexed.Recipient,
			Amount0:   amount0,
			Amount1:   amount1,
			Strategy:  model.StrategyStandard,
		}, true
	}
}

// V2StandardStrategy matches logs carrying the canonical V2 Swap topic.
func V2StandardStrategy(event abi.Event) Strategy {
	return func(log types.Log) (model.DecodedSwap, bool) {
		if len(log.Topics) != 3 || log.Topics[0] != event.ID {
			return nil, false
		}

		var indexed struct {
			Sender common.Address
			To     common.Address
		}
		if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
			return nil, false
		}

		values, err := event.Inputs.NonIndexed().Unpack(log.Data)
		if err != nil || len(values) != 4 {
			return nil, false
		}
		amounts := make([]*big.Int, 0, 4)
		for _, value := range values {
			amount, err := asBigInt(value)
			if err != nil {
				return nil, false
			}
			amounts = append(amounts, amount)
		}

		return model.V2InOut{
			Sender:     indexed.Sender,
			Recipient:  indexed.To,
			Amount0In:  amounts[0],
			Amount1In:  amounts[1],
			Amount0Out: amounts[2],
			Amount1Out: amounts[3],
		}, true
	}
}

// V3FallbackStrategy decodes the V3 data layout positionally for logs whose
// topic0 is none of the canonical hashes but which still carry two indexed
// address slots (proxies and re-declared events).
func V3FallbackStrategy(event abi.Event, canonical ...common.Hash) Strategy {
	return func(log types.Log) (model.DecodedSwap, bool) {
		if len(log.Topics) < 3 {
			return nil, false
		}
		for _, id := range canonical {
			if log.Topics[0] == id {
				return nil, false
			}
		}

		amount0, amount1, ok := unpackV3Amounts(event, log.Data)
		if !ok {
			return nil, false
		}

		return model.V3Delta{
			Sender:    common.BytesToAddress(log.Topics[1].Bytes()),
			Recipient: common.BytesToAddress(log.Topics[2].Bytes()),
			Amount0:   amount0,
			Amount1:   amount1,
			Strategy:  model.StrategyFallback,
		}, true
	}
}

func unpackV3Amounts(event abi.Event, data []byte) (*big.Int, *big.Int, bool) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil || len(values) != 5 {
		return nil, nil, false
	}
	amount0, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, false
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, false
	}
	return amount0, amount1, true
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
