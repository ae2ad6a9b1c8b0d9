package discovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swapwatch/internal/dex"
	"swapwatch/internal/indexer"
)

const (
	DefaultScanBlocks uint64 = 5000
	DefaultScanStep   uint64 = 800
)

// ChainReader is the chain access the log scan needs.
type ChainReader interface {
	dex.ContractCaller
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// Candidate is a pool for the wanted pair with its swap count in the scan.
type Candidate struct {
	Address common.Address
	Swaps   int
}

// ScanOptions controls the log scan.
type ScanOptions struct {
	Token  common.Address
	Quote  common.Address
	Blocks uint64
	Step   uint64
}

// ScanPools counts V2 and V3 Swap logs per emitting address over the last
// Blocks blocks and keeps the addresses whose token pair is {Token, Quote}
// in either order, most active first.
func ScanPools(ctx context.Context, reader ChainReader, opts ScanOptions, logger *zap.Logger) ([]Candidate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Blocks == 0 {
		opts.Blocks = DefaultScanBlocks
	}
	if opts.Step == 0 {
		opts.Step = DefaultScanStep
	}

	topics, err := swapTopics()
	if err != nil {
		return nil, err
	}

	latest, err := reader.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	from := uint64(1)
	if latest > opts.Blocks+1 {
		from = latest - opts.Blocks
	}
	if from > latest {
		return nil, nil
	}

	windows, err := indexer.SplitRange(from, latest, opts.Step)
	if err != nil {
		return nil, err
	}

	counts := make(map[common.Address]int)
	for _, window := range windows {
		logs, err := reader.FilterLogs(ctx, window.From, window.To, nil, topics)
		if err != nil {
			logger.Warn("scan window skipped", zap.Error(err), zap.Uint64("from", window.From), zap.Uint64("to", window.To))
			continue
		}
		for _, log := range logs {
			counts[log.Address]++
		}
	}
	logger.Info("swap emitters found", zap.Int("addresses", len(counts)), zap.Uint64("from", from), zap.Uint64("to", latest))

	matches := make([]Candidate, 0)
	for addr, count := range counts {
		token0, token1, err := dex.TokenPair(ctx, reader, addr)
		if err != nil {
			continue
		}
		if isPair(token0, token1, opts.Token, opts.Quote) {
			matches = append(matches, Candidate{Address: addr, Swaps: count})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Swaps != matches[j].Swaps {
			return matches[i].Swaps > matches[j].Swaps
		}
		return matches[i].Address.Hex() < matches[j].Address.Hex()
	})
	return matches, nil
}

func swapTopics() ([]common.Hash, error) {
	v2, err := dex.V2PairABI()
	if err != nil {
		return nil, err
	}
	v3, err := dex.V3PoolABI()
	if err != nil {
		return nil, err
	}
	return []common.Hash{v2.Events["Swap"].ID, v3.Events["Swap"].ID}, nil
}

func isPair(token0, token1, a, b common.Address) bool {
	return (token0 == a && token1 == b) || (token0 == b && token1 == a)
}
