package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapwatch/internal/model"
)

// DefaultDecimals is assumed when a token does not answer decimals().
const DefaultDecimals = 18

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ResolveOptions selects the focus and quote tokens of a pool.
type ResolveOptions struct {
	// Target is the optional focus token; nil or non-matching means token0.
	Target *common.Address
	// Quote is the USD-priced asset (typically the wrapped native token).
	Quote common.Address
}

// ResolvePool loads token addresses, symbols and decimals for the pool.
// Failing to read token0/token1 under both pool layouts is fatal.
func ResolvePool(ctx context.Context, caller ContractCaller, pool common.Address, opts ResolveOptions, logger *zap.Logger) (model.PoolMetadata, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	token0, token1, err := TokenPair(ctx, caller, pool)
	if err != nil {
		return model.PoolMetadata{}, err
	}

	meta := model.PoolMetadata{
		Address: pool,
		Tokens: [2]model.TokenMeta{
			FetchTokenMeta(ctx, caller, token0, logger),
			FetchTokenMeta(ctx, caller, token1, logger),
		},
		FocusIndex: 0,
		QuoteIndex: quoteIndex(token0, token1, opts.Quote),
	}

	if opts.Target != nil {
		switch *opts.Target {
		case token0:
			meta.FocusIndex = 0
		case token1:
			meta.FocusIndex = 1
		default:
			logger.Warn("target token is not part of the pool, using token0",
				zap.String("target", opts.Target.Hex()),
				zap.String("token0", token0.Hex()),
				zap.String("token1", token1.Hex()),
			)
		}
	}

	return meta, nil
}

// TokenPair reads token0/token1, first with the V3 pool ABI and then with the
// V2 pair ABI.
func TokenPair(ctx context.Context, caller ContractCaller, pool common.Address) (common.Address, common.Address, error) {
	if caller == nil {
		return common.Address{}, common.Address{}, fmt.Errorf("chain client is nil")
	}

	v3, err := V3PoolABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse v3 pool abi: %w", err)
	}
	token0, token1, v3Err := readTokenPair(ctx, caller, pool, v3)
	if v3Err == nil {
		return token0, token1, nil
	}

	v2, err := V2PairABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse v2 pair abi: %w", err)
	}
	token0, token1, v2Err := readTokenPair(ctx, caller, pool, v2)
	if v2Err == nil {
		return token0, token1, nil
	}

	return common.Address{}, common.Address{}, fmt.Errorf("resolve pool tokens %s: %w", pool.Hex(), errors.Join(v3Err, v2Err))
}

func readTokenPair(ctx context.Context, caller ContractCaller, pool common.Address, parsed abi.ABI) (common.Address, common.Address, error) {
	values, err := callMethod(ctx, caller, pool, parsed, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, caller, pool, parsed, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}

	return token0, token1, nil
}

// FetchTokenMeta loads symbol and decimals. It never fails: a missing symbol
// becomes a short address prefix and missing decimals become 18.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) model.TokenMeta {
	meta := model.TokenMeta{
		Address:  token,
		Symbol:   ShortSymbol(token),
		Decimals: DefaultDecimals,
	}
	if caller == nil {
		return meta
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20ABI.get()
	if err != nil {
		logger.Warn("parse erc20 abi", zap.Error(err))
		return meta
	}
	bytes32ABI, err := erc20Bytes32SymbolABI.get()
	if err != nil {
		logger.Warn("parse erc20 bytes32 abi", zap.Error(err))
		return meta
	}

	if values, err := callMethod(ctx, caller, token, stringABI, "decimals"); err == nil {
		if decimals, err := asUint8(values[0]); err == nil {
			meta.Decimals = decimals
		}
	} else {
		logger.Debug("decimals call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok && symbol != "" {
			meta.Symbol = symbol
		}
	} else if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol"); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok && symbol != "" {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	return meta
}

// ShortSymbol is the placeholder symbol used for tokens without symbol().
func ShortSymbol(token common.Address) string {
	return token.Hex()[:6]
}

func quoteIndex(token0, token1, quote common.Address) int {
	if quote == (common.Address{}) || token0 == token1 {
		return -1
	}
	switch quote {
	case token0:
		return 0
	case token1:
		return 1
	default:
		return -1
	}
}

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string) ([]interface{}, error) {
	data, err := parsed.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
