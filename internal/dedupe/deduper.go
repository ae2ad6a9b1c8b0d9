// Package dedupe suppresses swaps delivered by both the push and poll
// channels.
package dedupe

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Deduper reports whether an id has been seen before, recording it if not.
type Deduper interface {
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
}

// ID identifies one log: transaction hash and log index.
func ID(txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s:%d", txHash.Hex(), logIndex)
}

// Nop never reports duplicates.
type Nop struct{}

func (Nop) Seen(context.Context, string) (bool, error) { return false, nil }
