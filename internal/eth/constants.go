package eth

import (
	"github.com/ethereum/go-ethereum/common"
)

const MainnetChainID uint64 = 1

// Token addresses, Ethereum mainnet
var (
	WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDCAddress = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	USDTAddress = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	DAIAddress  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	WBTCAddress = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
)

const (
	WETHDecimals = 18
	USDCDecimals = 6
	USDTDecimals = 6
	DAIDecimals  = 18
	WBTCDecimals = 8
)

// TokenInfo bundles address + decimals for easy lookup
type TokenInfo struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// KnownTokens, lookup by symbol; the universe file may reference these by symbol alone
var KnownTokens = map[string]TokenInfo{
	"WETH": {WETHAddress, WETHDecimals, "WETH"},
	"USDC": {USDCAddress, USDCDecimals, "USDC"},
	"USDT": {USDTAddress, USDTDecimals, "USDT"},
	"DAI":  {DAIAddress, DAIDecimals, "DAI"},
	"WBTC": {WBTCAddress, WBTCDecimals, "WBTC"},
}

// DEX kinds as written in the universe file
const (
	KindV2 = "v2"
	KindV3 = "v3"
)

// DEXConfig, factory + init code hash is all you need to derive any pool address
type DEXConfig struct {
	Name         string
	Kind         string
	Factory      common.Address
	InitCodeHash [32]byte
	Router       common.Address
}

var KnownDEXes = []DEXConfig{
	{
		Name:         "uniswap",
		Kind:         KindV2,
		Factory:      common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"),
		InitCodeHash: hexToBytes32("96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"),
		Router:       common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
	},
	{
		Name:         "sushiswap",
		Kind:         KindV2,
		Factory:      common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac"),
		InitCodeHash: hexToBytes32("e18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303"),
		Router:       common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
	},
	{
		Name:         "uniswap-v3",
		Kind:         KindV3,
		Factory:      common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984"),
		InitCodeHash: hexToBytes32("e34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"),
		Router:       common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
	},
}

// DEXByName returns the known DEX with name
func DEXByName(name string) (DEXConfig, bool) {
	for _, d := range KnownDEXes {
		if d.Name == name {
			return d, true
		}
	}
	return DEXConfig{}, false
}

func hexToBytes32(s string) [32]byte {
	var b [32]byte
	copy(b[:], common.FromHex(s))
	return b
}

// Uniswap V2 pair, reserves and token order
const UniswapV2PairABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"},
			{"internalType": "uint32",  "name": "blockTimestampLast", "type": "uint32"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	},
	{"inputs": [], "name": "token0", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
	{"inputs": [], "name": "token1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

// Uniswap V3 pool, price, liquidity and tick data
const UniswapV3PoolABI = `[
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{"inputs": [], "name": "liquidity", "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}], "stateMutability": "view", "type": "function"},
	{"inputs": [], "name": "tickSpacing", "outputs": [{"internalType": "int24", "name": "", "type": "int24"}], "stateMutability": "view", "type": "function"},
	{"inputs": [], "name": "fee", "outputs": [{"internalType": "uint24", "name": "", "type": "uint24"}], "stateMutability": "view", "type": "function"},
	{
		"inputs": [{"internalType": "int16", "name": "wordPosition", "type": "int16"}],
		"name": "tickBitmap",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "int24", "name": "tick", "type": "int24"}],
		"name": "ticks",
		"outputs": [
			{"internalType": "uint128", "name": "liquidityGross", "type": "uint128"},
			{"internalType": "int128", "name": "liquidityNet", "type": "int128"},
			{"internalType": "uint256", "name": "feeGrowthOutside0X128", "type": "uint256"},
			{"internalType": "uint256", "name": "feeGrowthOutside1X128", "type": "uint256"},
			{"internalType": "int56", "name": "tickCumulativeOutside", "type": "int56"},
			{"internalType": "uint160", "name": "secondsPerLiquidityOutsideX128", "type": "uint160"},
			{"internalType": "uint32", "name": "secondsOutside", "type": "uint32"},
			{"internalType": "bool", "name": "initialized", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`
