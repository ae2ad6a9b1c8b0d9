package model

import "github.com/ethereum/go-ethereum/common"

// TokenMeta captures the ERC20 fields the engine needs.
type TokenMeta struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}
