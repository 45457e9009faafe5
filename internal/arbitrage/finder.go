package arbitrage

import (
	"bytes"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

type pairKey struct {
	a, b common.Address
}

func newPairKey(x, y common.Address) pairKey {
	if bytes.Compare(x.Bytes(), y.Bytes()) > 0 {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// tokenGraph is an undirected multigraph, tokens are vertices and every pool is an edge
type tokenGraph struct {
	byToken map[common.Address][]*PoolState
	byPair  map[pairKey][]*PoolState
}

func newTokenGraph(pools []*PoolState) *tokenGraph {
	g := &tokenGraph{
		byToken: make(map[common.Address][]*PoolState),
		byPair:  make(map[pairKey][]*PoolState),
	}
	for _, p := range pools {
		// pools that cannot be priced never make it into the graph
		if p.Validate() != nil || SpotRate(p, p.Token0) == nil {
			continue
		}
		g.byToken[p.Token0.Address] = append(g.byToken[p.Token0.Address], p)
		g.byToken[p.Token1.Address] = append(g.byToken[p.Token1.Address], p)
		key := newPairKey(p.Token0.Address, p.Token1.Address)
		g.byPair[key] = append(g.byPair[key], p)
	}
	return g
}

// FindOpportunities enumerates spatial and triangular cycles through borrowToken.
// No simulation happens here, callers size and evaluate each candidate.
func FindOpportunities(pools []*PoolState, borrowToken Token) []*Opportunity {
	g := newTokenGraph(pools)
	opps := g.spatial(borrowToken)
	return append(opps, g.triangular(borrowToken)...)
}

// spatial emits one opportunity per pair of pools on the same token pair
func (g *tokenGraph) spatial(borrow Token) []*Opportunity {
	var opps []*Opportunity

	// group the borrow token's pools by counter token, keeping input order
	var order []common.Address
	groups := make(map[common.Address][]*PoolState)
	for _, p := range g.byToken[borrow.Address] {
		other, ok := p.Other(borrow)
		if !ok {
			continue
		}
		if _, seen := groups[other.Address]; !seen {
			order = append(order, other.Address)
		}
		groups[other.Address] = append(groups[other.Address], p)
	}

	for _, addr := range order {
		group := groups[addr]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				buy, sell := group[i], group[j]
				// buy where one borrow token gets the most of the other token
				if legRate(buy, borrow).Cmp(legRate(sell, borrow)) < 0 {
					buy, sell = sell, buy
				}
				other, _ := buy.Other(borrow)
				opps = append(opps, &Opportunity{
					Kind:        Spatial,
					Pools:       []*PoolState{buy, sell},
					PathTokens:  []Token{borrow, other, borrow},
					BorrowToken: borrow,
				})
			}
		}
	}
	return opps
}

// triangular emits every A->B->C->A cycle once, in its more favourable direction
func (g *tokenGraph) triangular(borrow Token) []*Opportunity {
	var opps []*Opportunity
	seen := make(map[string]struct{})

	for _, p1 := range g.byToken[borrow.Address] {
		tokenB, ok := p1.Other(borrow)
		if !ok {
			continue
		}
		for _, p2 := range g.byToken[tokenB.Address] {
			if p2 == p1 {
				continue
			}
			tokenC, ok := p2.Other(tokenB)
			if !ok || tokenC.Equal(borrow) || tokenC.Equal(tokenB) {
				continue
			}
			for _, p3 := range g.byPair[newPairKey(tokenC.Address, borrow.Address)] {
				key := triangleKey(p1, p2, p3)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}

				forward := &Opportunity{
					Kind:        Triangular,
					Pools:       []*PoolState{p1, p2, p3},
					PathTokens:  []Token{borrow, tokenB, tokenC, borrow},
					BorrowToken: borrow,
				}
				reverse := &Opportunity{
					Kind:        Triangular,
					Pools:       []*PoolState{p3, p2, p1},
					PathTokens:  []Token{borrow, tokenC, tokenB, borrow},
					BorrowToken: borrow,
				}

				fwdRate := PathSpotRate(forward.Pools, forward.PathTokens)
				revRate := PathSpotRate(reverse.Pools, reverse.PathTokens)
				switch {
				case fwdRate == nil && revRate == nil:
					continue
				case fwdRate == nil:
					opps = append(opps, reverse)
				case revRate == nil || fwdRate.Cmp(revRate) >= 0:
					opps = append(opps, forward)
				default:
					opps = append(opps, reverse)
				}
			}
		}
	}
	return opps
}

func legRate(p *PoolState, tokenIn Token) *big.Float {
	r := SpotRate(p, tokenIn)
	if r == nil {
		return new(big.Float)
	}
	return r.Mul(r, feeMultiplier(p.FeeBps))
}

// triangleKey identifies a 3-pool cycle regardless of traversal order
func triangleKey(pools ...*PoolState) string {
	addrs := make([]string, len(pools))
	for i, p := range pools {
		addrs[i] = strings.ToLower(p.Address.Hex())
	}
	sort.Strings(addrs)
	return strings.Join(addrs, "-")
}
