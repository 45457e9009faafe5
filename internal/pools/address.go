package pools

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pulkyeet/flash-arb/internal/eth"
)

// SortTokens returns a, b in canonical pool order
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		return b, a
	}
	return a, b
}

// ComputePairAddress derives a V2 pair address with CREATE2, no RPC needed
func ComputePairAddress(dex eth.DEXConfig, tokenA, tokenB common.Address) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(dex.Factory, salt, dex.InitCodeHash[:])
}

// ComputePoolAddress derives a V3 pool address, the salt also commits to the fee tier (hundredths of a bip)
func ComputePoolAddress(dex eth.DEXConfig, tokenA, tokenB common.Address, fee uint32) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	salt := crypto.Keccak256Hash(
		common.LeftPadBytes(token0.Bytes(), 32),
		common.LeftPadBytes(token1.Bytes(), 32),
		common.LeftPadBytes(big.NewInt(int64(fee)).Bytes(), 32),
	)
	return crypto.CreateAddress2(dex.Factory, salt, dex.InitCodeHash[:])
}

// DeriveAddress picks the derivation for the DEX kind. feeBps only matters for v3.
func DeriveAddress(dex eth.DEXConfig, tokenA, tokenB common.Address, feeBps uint32) (common.Address, error) {
	switch dex.Kind {
	case eth.KindV2:
		return ComputePairAddress(dex, tokenA, tokenB), nil
	case eth.KindV3:
		return ComputePoolAddress(dex, tokenA, tokenB, feeBps*100), nil
	}
	return common.Address{}, fmt.Errorf("unknown dex kind %q for %s", dex.Kind, dex.Name)
}

// DefaultTickSpacing is the factory's spacing for a fee tier
func DefaultTickSpacing(feeBps uint32) int32 {
	switch feeBps {
	case 1:
		return 1
	case 5:
		return 10
	case 30:
		return 60
	case 100:
		return 200
	}
	return 0
}
