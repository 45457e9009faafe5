package arbitrage

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatAmount renders raw token units with the token's decimals, e.g. 1500000 USDC -> "1.5"
func FormatAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// FormatFor is FormatAmount with the symbol appended
func FormatFor(amount *big.Int, token Token) string {
	return FormatAmount(amount, token.Decimals) + " " + token.String()
}
