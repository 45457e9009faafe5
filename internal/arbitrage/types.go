package arbitrage

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an ERC20 identified by (ChainID, Address)
type Token struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
	ChainID  uint64
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}

// Equal compares identity only, symbol and decimals are metadata
func (t Token) Equal(o Token) bool {
	return t.ChainID == o.ChainID && t.Address == o.Address
}

// PoolKind selects the AMM model a pool is simulated with
type PoolKind int

const (
	ConstantProduct PoolKind = iota
	ConcentratedLiquidity
)

func (k PoolKind) String() string {
	switch k {
	case ConstantProduct:
		return "constant-product"
	case ConcentratedLiquidity:
		return "concentrated-liquidity"
	default:
		return fmt.Sprintf("pool-kind(%d)", int(k))
	}
}

// PoolState is an immutable snapshot of a pool read at BlockNumber.
// Token0 < Token1 by address; reserves and liquidity are never negative.
type PoolState struct {
	Address     common.Address
	DEX         string
	Kind        PoolKind
	Token0      Token
	Token1      Token
	FeeBps      uint32
	BlockNumber uint64

	// constant product
	Reserve0 *big.Int
	Reserve1 *big.Int

	// concentrated liquidity
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	TickSpacing  int32
	Ticks        TickAccessor
}

// HasToken reports whether t is one of the pool's two tokens
func (p *PoolState) HasToken(t Token) bool {
	return p.Token0.Equal(t) || p.Token1.Equal(t)
}

// Other returns the pool token that is not t
func (p *PoolState) Other(t Token) (Token, bool) {
	switch {
	case p.Token0.Equal(t):
		return p.Token1, true
	case p.Token1.Equal(t):
		return p.Token0, true
	}
	return Token{}, false
}

// Validate checks the fields the pool's model needs
func (p *PoolState) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil pool", ErrMalformedPool)
	}
	if p.Token0.Address == (common.Address{}) || p.Token1.Address == (common.Address{}) {
		return fmt.Errorf("%w: %s missing token metadata", ErrMalformedPool, p.Address.Hex())
	}
	if bytes.Compare(p.Token0.Address.Bytes(), p.Token1.Address.Bytes()) >= 0 {
		return fmt.Errorf("%w: %s tokens not in canonical order", ErrMalformedPool, p.Address.Hex())
	}
	if p.FeeBps >= 10000 {
		return fmt.Errorf("%w: %s fee %d bps", ErrMalformedPool, p.Address.Hex(), p.FeeBps)
	}

	switch p.Kind {
	case ConstantProduct:
		if p.Reserve0 == nil || p.Reserve1 == nil {
			return fmt.Errorf("%w: %s missing reserves", ErrMalformedPool, p.Address.Hex())
		}
		if p.Reserve0.Sign() < 0 || p.Reserve1.Sign() < 0 {
			return fmt.Errorf("%w: %s negative reserves", ErrMalformedPool, p.Address.Hex())
		}
	case ConcentratedLiquidity:
		if p.SqrtPriceX96 == nil || p.Liquidity == nil {
			return fmt.Errorf("%w: %s missing price or liquidity", ErrMalformedPool, p.Address.Hex())
		}
		if p.SqrtPriceX96.Sign() <= 0 || p.Liquidity.Sign() < 0 {
			return fmt.Errorf("%w: %s invalid price or liquidity", ErrMalformedPool, p.Address.Hex())
		}
		if p.TickSpacing <= 0 {
			return fmt.Errorf("%w: %s tick spacing %d", ErrMalformedPool, p.Address.Hex(), p.TickSpacing)
		}
		if p.Ticks == nil {
			return fmt.Errorf("%w: %s no tick accessor", ErrMalformedPool, p.Address.Hex())
		}
	default:
		return fmt.Errorf("%w: %s unknown kind %d", ErrMalformedPool, p.Address.Hex(), p.Kind)
	}
	return nil
}

// OpportunityKind is the combinatorial shape found by the finder
type OpportunityKind int

const (
	Spatial OpportunityKind = iota
	Triangular
)

func (k OpportunityKind) String() string {
	switch k {
	case Spatial:
		return "spatial"
	case Triangular:
		return "triangular"
	default:
		return fmt.Sprintf("opportunity-kind(%d)", int(k))
	}
}

// Opportunity is a closed path starting and ending at BorrowToken.
// PathTokens has len(Pools)+1 entries, hop i swaps PathTokens[i] -> PathTokens[i+1] in Pools[i].
type Opportunity struct {
	Kind         OpportunityKind
	Pools        []*PoolState
	PathTokens   []Token
	BorrowToken  Token
	BorrowAmount *big.Int
}

// ID is stable for the same pools in the same order
func (o *Opportunity) ID() string {
	var b bytes.Buffer
	b.WriteString(o.Kind.String())
	for _, p := range o.Pools {
		b.WriteByte(':')
		b.WriteString(p.Address.Hex()[2:10])
	}
	return b.String()
}

// Route renders the token path, e.g. WETH>USDC>WETH
func (o *Opportunity) Route() string {
	var b bytes.Buffer
	for i, t := range o.PathTokens {
		if i > 0 {
			b.WriteByte('>')
		}
		b.WriteString(t.String())
	}
	return b.String()
}

// WithAmount returns a shallow copy carrying amount
func (o *Opportunity) WithAmount(amount *big.Int) *Opportunity {
	cp := *o
	cp.BorrowAmount = new(big.Int).Set(amount)
	return &cp
}

// SimulationResult holds hop-by-hop outputs for one borrow amount
type SimulationResult struct {
	AmountIn    *big.Int
	HopOutputs  []*big.Int
	FinalAmount *big.Int
	GrossProfit *big.Int
}

func (s *SimulationResult) Profitable() bool {
	return s != nil && s.GrossProfit != nil && s.GrossProfit.Sign() > 0
}

// FeeData is the current network fee quote. MaxFeePerGas is set on EIP-1559 chains, GasPrice otherwise.
type FeeData struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// PerGas is the price used for cost estimation
func (f *FeeData) PerGas() *big.Int {
	if f == nil {
		return nil
	}
	if f.MaxFeePerGas != nil && f.MaxFeePerGas.Sign() > 0 {
		return f.MaxFeePerGas
	}
	return f.GasPrice
}

// ProfitabilityResult is the outcome of Calculator.Evaluate
type ProfitabilityResult struct {
	GasEstimateUnits  uint64
	FeePerGas         *big.Int
	GasCostNative     *big.Int
	GasCostToken      *big.Int
	GrossProfit       *big.Int
	NetProfit         *big.Int
	BufferedNetProfit *big.Int
	IsProfitable      bool
	Reason            string
}
