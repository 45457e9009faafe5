package config

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/eth"
	"github.com/pulkyeet/flash-arb/internal/pools"
	"github.com/sugawarayuuta/sonnet"
)

// universe file layout
type universeFile struct {
	Native         string            `json:"native"`
	Tokens         []tokenEntry      `json:"tokens"`
	Borrow         []borrowEntry     `json:"borrow"`
	Pools          []poolEntry       `json:"pools"`
	Routers        map[string]string `json:"routers"`
	ReferencePools map[string]string `json:"reference_pools"`
}

type tokenEntry struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals *uint8 `json:"decimals"`
}

type borrowEntry struct {
	Token     string   `json:"token"`
	Amounts   []string `json:"amounts"`
	MinProfit string   `json:"min_profit"`
}

type poolEntry struct {
	DEX         string    `json:"dex"`
	Address     string    `json:"address"`
	Tokens      [2]string `json:"tokens"`
	FeeBps      uint32    `json:"fee_bps"`
	TickSpacing int32     `json:"tick_spacing"`
}

// BorrowConfig is a token the bot borrows, with the amounts it sizes and the profit floor
type BorrowConfig struct {
	Token     arbitrage.Token
	Amounts   []*big.Int
	MinProfit *big.Int
}

// Universe is the resolved token and pool set
type Universe struct {
	Native    arbitrage.Token
	Tokens    map[string]arbitrage.Token
	Borrow    []BorrowConfig
	Pools     []pools.Spec
	Routers   map[string]common.Address
	Reference map[common.Address]common.Address // token -> pool pairing it with the native token
}

// ParseUniverse decodes and resolves a universe file. Tokens known by symbol may
// omit address and decimals, pools may omit address when the DEX is known.
func ParseUniverse(raw []byte, chainID uint64) (*Universe, error) {
	var f universeFile
	if err := sonnet.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: decode universe: %v", arbitrage.ErrConfig, err)
	}
	if chainID == 0 {
		chainID = eth.MainnetChainID
	}

	u := &Universe{
		Tokens:    make(map[string]arbitrage.Token),
		Routers:   make(map[string]common.Address),
		Reference: make(map[common.Address]common.Address),
	}

	for _, t := range f.Tokens {
		tok, err := resolveToken(t, chainID)
		if err != nil {
			return nil, err
		}
		u.Tokens[tok.Symbol] = tok
	}

	native, ok := u.Tokens[f.Native]
	if !ok {
		return nil, fmt.Errorf("%w: native token %q not listed", arbitrage.ErrConfig, f.Native)
	}
	u.Native = native

	for _, b := range f.Borrow {
		bc, err := u.resolveBorrow(b)
		if err != nil {
			return nil, err
		}
		u.Borrow = append(u.Borrow, bc)
	}

	for _, d := range eth.KnownDEXes {
		u.Routers[d.Name] = d.Router
	}
	for name, addr := range f.Routers {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: router %s address %q", arbitrage.ErrConfig, name, addr)
		}
		u.Routers[name] = common.HexToAddress(addr)
	}

	for i, p := range f.Pools {
		spec, err := u.resolvePool(p)
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", i, err)
		}
		u.Pools = append(u.Pools, spec)
	}

	for symbol, addr := range f.ReferencePools {
		tok, ok := u.Tokens[symbol]
		if !ok {
			return nil, fmt.Errorf("%w: reference pool for unknown token %q", arbitrage.ErrConfig, symbol)
		}
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("%w: reference pool %q", arbitrage.ErrConfig, addr)
		}
		u.Reference[tok.Address] = common.HexToAddress(addr)
	}

	return u, nil
}

func resolveToken(t tokenEntry, chainID uint64) (arbitrage.Token, error) {
	known, isKnown := eth.KnownTokens[t.Symbol]
	tok := arbitrage.Token{Symbol: t.Symbol, ChainID: chainID}

	switch {
	case t.Address != "":
		if !common.IsHexAddress(t.Address) {
			return tok, fmt.Errorf("%w: token %s address %q", arbitrage.ErrConfig, t.Symbol, t.Address)
		}
		tok.Address = common.HexToAddress(t.Address)
	case isKnown:
		tok.Address = known.Address
	default:
		return tok, fmt.Errorf("%w: token %s has no address", arbitrage.ErrConfig, t.Symbol)
	}

	switch {
	case t.Decimals != nil:
		tok.Decimals = *t.Decimals
	case isKnown:
		tok.Decimals = known.Decimals
	default:
		return tok, fmt.Errorf("%w: token %s has no decimals", arbitrage.ErrConfig, t.Symbol)
	}
	return tok, nil
}

func (u *Universe) resolveBorrow(b borrowEntry) (BorrowConfig, error) {
	tok, ok := u.Tokens[b.Token]
	if !ok {
		return BorrowConfig{}, fmt.Errorf("%w: borrow token %q not listed", arbitrage.ErrConfig, b.Token)
	}
	bc := BorrowConfig{Token: tok, MinProfit: new(big.Int)}
	for _, a := range b.Amounts {
		amount, ok := new(big.Int).SetString(a, 10)
		if !ok || amount.Sign() <= 0 {
			return bc, fmt.Errorf("%w: borrow amount %q for %s", arbitrage.ErrConfig, a, b.Token)
		}
		bc.Amounts = append(bc.Amounts, amount)
	}
	if b.MinProfit != "" {
		mp, ok := new(big.Int).SetString(b.MinProfit, 10)
		if !ok || mp.Sign() < 0 {
			return bc, fmt.Errorf("%w: min profit %q for %s", arbitrage.ErrConfig, b.MinProfit, b.Token)
		}
		bc.MinProfit = mp
	}
	return bc, nil
}

func (u *Universe) resolvePool(p poolEntry) (pools.Spec, error) {
	a, okA := u.Tokens[p.Tokens[0]]
	b, okB := u.Tokens[p.Tokens[1]]
	if !okA || !okB {
		return pools.Spec{}, fmt.Errorf("%w: pool tokens %v not listed", arbitrage.ErrConfig, p.Tokens)
	}

	dex, known := eth.DEXByName(p.DEX)
	kind := arbitrage.ConstantProduct
	if known && dex.Kind == eth.KindV3 {
		kind = arbitrage.ConcentratedLiquidity
	}

	spec := pools.Spec{
		DEX:         p.DEX,
		Kind:        kind,
		TokenA:      a,
		TokenB:      b,
		FeeBps:      p.FeeBps,
		TickSpacing: p.TickSpacing,
	}
	if kind == arbitrage.ConstantProduct && spec.FeeBps == 0 {
		spec.FeeBps = 30
	}

	switch {
	case p.Address != "":
		if !common.IsHexAddress(p.Address) {
			return spec, fmt.Errorf("%w: pool address %q", arbitrage.ErrConfig, p.Address)
		}
		spec.Address = common.HexToAddress(p.Address)
	case known:
		addr, err := pools.DeriveAddress(dex, a.Address, b.Address, spec.FeeBps)
		if err != nil {
			return spec, fmt.Errorf("%w: %v", arbitrage.ErrConfig, err)
		}
		spec.Address = addr
	default:
		return spec, fmt.Errorf("%w: pool on unknown dex %q needs an address", arbitrage.ErrConfig, p.DEX)
	}
	return spec, nil
}

// Validate checks cross references inside the universe
func (u *Universe) Validate() error {
	if len(u.Borrow) == 0 {
		return fmt.Errorf("no borrow tokens configured")
	}
	for _, b := range u.Borrow {
		if len(b.Amounts) == 0 {
			return fmt.Errorf("borrow token %s has no amounts", b.Token)
		}
	}
	if len(u.Pools) < 2 {
		return fmt.Errorf("at least two pools are needed, got %d", len(u.Pools))
	}
	seen := make(map[common.Address]bool)
	for _, p := range u.Pools {
		if seen[p.Address] {
			return fmt.Errorf("pool %s listed twice", p.Address.Hex())
		}
		seen[p.Address] = true
		if p.TokenA.Address == p.TokenB.Address {
			return fmt.Errorf("pool %s pairs a token with itself", p.Address.Hex())
		}
		if p.Kind == arbitrage.ConcentratedLiquidity && p.FeeBps == 0 {
			return fmt.Errorf("concentrated pool %s has no fee tier", p.Address.Hex())
		}
	}
	// gas is priced from the cycle snapshot, so reference pools must be tracked
	for token, pool := range u.Reference {
		if !seen[pool] {
			return fmt.Errorf("reference pool %s for %s is not in the pool list", pool.Hex(), token.Hex())
		}
	}
	return nil
}

// MinProfit maps borrow token addresses to their thresholds
func (u *Universe) MinProfit() map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(u.Borrow))
	for _, b := range u.Borrow {
		out[b.Token.Address] = b.MinProfit
	}
	return out
}
