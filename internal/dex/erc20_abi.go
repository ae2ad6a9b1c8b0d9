package dex

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// symbol() as bytes32, for tokens that predate the string return type.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABI              = &lazyABI{raw: erc20ABIStringJSON}
	erc20Bytes32SymbolABI = &lazyABI{raw: erc20ABIBytes32JSON}
)
