package discovery

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapwatch/internal/dex"
	"swapwatch/internal/model"
)

// PoolCheck is the on-chain identity of a pool.
type PoolCheck struct {
	Pool    common.Address
	Token0  model.TokenMeta
	Token1  model.TokenMeta
	Matches bool
}

// CheckPool reads the pool's tokens and reports whether they are {a, b} in
// either order. Read failures are returned as errors.
func CheckPool(ctx context.Context, caller dex.ContractCaller, pool, a, b common.Address, logger *zap.Logger) (PoolCheck, error) {
	token0, token1, err := dex.TokenPair(ctx, caller, pool)
	if err != nil {
		return PoolCheck{}, fmt.Errorf("read pool tokens: %w", err)
	}
	return PoolCheck{
		Pool:    pool,
		Token0:  dex.FetchTokenMeta(ctx, caller, token0, logger),
		Token1:  dex.FetchTokenMeta(ctx, caller, token1, logger),
		Matches: isPair(token0, token1, a, b),
	}, nil
}
