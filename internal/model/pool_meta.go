package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// PoolMetadata captures the resolved identity of the watched pool.
// It is built once at startup and never mutated afterwards.
type PoolMetadata struct {
	Address    common.Address
	Tokens     [2]TokenMeta
	FocusIndex int
	// QuoteIndex is the index of the USD-priced quote token, or -1 when
	// neither (or both) of the pool tokens is the quote asset.
	QuoteIndex int
}

// Focus returns the focus token metadata.
func (m PoolMetadata) Focus() TokenMeta {
	return m.Tokens[m.FocusIndex]
}

// Other returns the non-focus token metadata.
func (m PoolMetadata) Other() TokenMeta {
	return m.Tokens[1-m.FocusIndex]
}

// HasQuote reports whether USD estimates can be derived for this pool.
func (m PoolMetadata) HasQuote() bool {
	return m.QuoteIndex == 0 || m.QuoteIndex == 1
}
