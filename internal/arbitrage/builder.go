package arbitrage

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PathKind is the on-chain entry point a path is encoded for
type PathKind int

const (
	PathV3TwoHop PathKind = iota
	PathTriangular
	PathMixedDex
)

func (k PathKind) String() string {
	switch k {
	case PathV3TwoHop:
		return "v3-two-hop"
	case PathTriangular:
		return "triangular"
	case PathMixedDex:
		return "mixed-dex"
	default:
		return fmt.Sprintf("path-kind(%d)", int(k))
	}
}

// Method is the flash contract function for the kind
func (k PathKind) Method() string {
	switch k {
	case PathV3TwoHop:
		return "initiateUniswapV3FlashLoan"
	case PathTriangular:
		return "initiateTriangularFlashSwap"
	case PathMixedDex:
		return "initiateAaveFlashLoan"
	default:
		return ""
	}
}

// SimulationIntent separates real submissions from gas estimation calls.
// GasProbe borrows a single unit with zero minimums so estimation never trips slippage guards.
type SimulationIntent int

const (
	RealExecution SimulationIntent = iota
	GasProbe
)

func (i SimulationIntent) String() string {
	if i == GasProbe {
		return "gas-probe"
	}
	return "real-execution"
}

// dex identifiers understood by the mixed entry point
const (
	DexConstantProduct uint8 = 0
	DexConcentrated    uint8 = 1
)

// flash contract entry points, tuple layouts must match the deployed contract
const FlashArbABI = `[
	{
		"type": "function",
		"name": "initiateUniswapV3FlashLoan",
		"stateMutability": "nonpayable",
		"inputs": [{
			"name": "params", "type": "tuple", "internalType": "struct FlashArb.V3FlashParams",
			"components": [
				{"name": "tokenBorrow", "type": "address"},
				{"name": "amountBorrow", "type": "uint256"},
				{"name": "flashPool", "type": "address"},
				{"name": "amount0", "type": "uint256"},
				{"name": "amount1", "type": "uint256"},
				{"name": "intermediateToken", "type": "address"},
				{"name": "feeLeg1", "type": "uint24"},
				{"name": "feeLeg2", "type": "uint24"},
				{"name": "minOut1", "type": "uint256"},
				{"name": "minOut2", "type": "uint256"},
				{"name": "titheRecipient", "type": "address"},
				{"name": "titheBps", "type": "uint256"}
			]
		}],
		"outputs": []
	},
	{
		"type": "function",
		"name": "initiateTriangularFlashSwap",
		"stateMutability": "nonpayable",
		"inputs": [{
			"name": "params", "type": "tuple", "internalType": "struct FlashArb.TriangularParams",
			"components": [
				{"name": "tokenBorrow", "type": "address"},
				{"name": "amountBorrow", "type": "uint256"},
				{"name": "flashPool", "type": "address"},
				{"name": "amount0", "type": "uint256"},
				{"name": "amount1", "type": "uint256"},
				{"name": "tokenA", "type": "address"},
				{"name": "tokenB", "type": "address"},
				{"name": "tokenC", "type": "address"},
				{"name": "fee1", "type": "uint24"},
				{"name": "fee2", "type": "uint24"},
				{"name": "fee3", "type": "uint24"},
				{"name": "minOutFinal", "type": "uint256"},
				{"name": "titheRecipient", "type": "address"},
				{"name": "titheBps", "type": "uint256"}
			]
		}],
		"outputs": []
	},
	{
		"type": "function",
		"name": "initiateAaveFlashLoan",
		"stateMutability": "nonpayable",
		"inputs": [{
			"name": "params", "type": "tuple", "internalType": "struct FlashArb.MixedDexParams",
			"components": [
				{"name": "tokenBorrow", "type": "address"},
				{"name": "amountBorrow", "type": "uint256"},
				{"name": "intermediateToken", "type": "address"},
				{"name": "dexLeg1", "type": "uint8"},
				{"name": "routerLeg1", "type": "address"},
				{"name": "feeLeg1", "type": "uint24"},
				{"name": "minOut1", "type": "uint256"},
				{"name": "dexLeg2", "type": "uint8"},
				{"name": "routerLeg2", "type": "address"},
				{"name": "feeLeg2", "type": "uint24"},
				{"name": "minOut2", "type": "uint256"},
				{"name": "titheRecipient", "type": "address"},
				{"name": "titheBps", "type": "uint256"}
			]
		}],
		"outputs": []
	}
]`

type V3FlashParams struct {
	TokenBorrow       common.Address
	AmountBorrow      *big.Int
	FlashPool         common.Address
	Amount0           *big.Int
	Amount1           *big.Int
	IntermediateToken common.Address
	FeeLeg1           *big.Int
	FeeLeg2           *big.Int
	MinOut1           *big.Int
	MinOut2           *big.Int
	TitheRecipient    common.Address
	TitheBps          *big.Int
}

type TriangularParams struct {
	TokenBorrow    common.Address
	AmountBorrow   *big.Int
	FlashPool      common.Address
	Amount0        *big.Int
	Amount1        *big.Int
	TokenA         common.Address
	TokenB         common.Address
	TokenC         common.Address
	Fee1           *big.Int
	Fee2           *big.Int
	Fee3           *big.Int
	MinOutFinal    *big.Int
	TitheRecipient common.Address
	TitheBps       *big.Int
}

// MixedDexParams fee fields are placeholders (zero) on constant product legs
type MixedDexParams struct {
	TokenBorrow       common.Address
	AmountBorrow      *big.Int
	IntermediateToken common.Address
	DexLeg1           uint8
	RouterLeg1        common.Address
	FeeLeg1           *big.Int
	MinOut1           *big.Int
	DexLeg2           uint8
	RouterLeg2        common.Address
	FeeLeg2           *big.Int
	MinOut2           *big.Int
	TitheRecipient    common.Address
	TitheBps          *big.Int
}

// TxParams is a fully encoded call to the flash contract
type TxParams struct {
	Kind         PathKind
	Method       string
	Selector     [4]byte
	Calldata     []byte
	Params       any
	To           common.Address
	BorrowToken  Token
	BorrowAmount *big.Int
	Intent       SimulationIntent
}

type BuilderConfig struct {
	Contract       common.Address
	Routers        map[string]common.Address // keyed by pool DEX name, used by mixed paths
	TitheRecipient common.Address
	TitheBps       uint32
}

type Builder struct {
	cfg BuilderConfig
	abi abi.ABI
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	parsed, err := abi.JSON(strings.NewReader(FlashArbABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse flash contract ABI: %w", err)
	}
	if cfg.TitheBps >= 10000 {
		return nil, fmt.Errorf("%w: tithe %d bps", ErrConfig, cfg.TitheBps)
	}
	return &Builder{cfg: cfg, abi: parsed}, nil
}

// ClassifyPath maps a path shape onto an entry point
func ClassifyPath(opp *Opportunity) (PathKind, error) {
	allConcentrated := true
	for _, p := range opp.Pools {
		if p.Kind != ConcentratedLiquidity {
			allConcentrated = false
		}
	}

	switch {
	case opp.Kind == Spatial && len(opp.Pools) == 2 && allConcentrated:
		return PathV3TwoHop, nil
	case opp.Kind == Spatial && len(opp.Pools) == 2:
		return PathMixedDex, nil
	case opp.Kind == Triangular && len(opp.Pools) == 3 && allConcentrated:
		return PathTriangular, nil
	}
	return 0, fmt.Errorf("%w: unsupported %s path over %d pools", ErrParamBuild, opp.Kind, len(opp.Pools))
}

// Build encodes opp for the flash contract. RealExecution needs the simulation of
// the same amount, GasProbe ignores sim and sends a 1 unit borrow.
func (b *Builder) Build(opp *Opportunity, sim *SimulationResult, slippageBps uint32, intent SimulationIntent) (*TxParams, error) {
	if len(opp.PathTokens) != len(opp.Pools)+1 || len(opp.Pools) == 0 {
		return nil, fmt.Errorf("%w: path has %d pools and %d tokens", ErrParamBuild, len(opp.Pools), len(opp.PathTokens))
	}
	kind, err := ClassifyPath(opp)
	if err != nil {
		return nil, err
	}

	legs, err := b.legs(kind, opp, sim, slippageBps, intent)
	if err != nil {
		return nil, err
	}

	var params any
	switch kind {
	case PathV3TwoHop:
		params, err = b.buildV3TwoHop(opp, legs)
	case PathTriangular:
		params, err = b.buildTriangular(opp, legs)
	case PathMixedDex:
		params, err = b.buildMixed(opp, legs)
	}
	if err != nil {
		return nil, err
	}

	method := kind.Method()
	calldata, err := b.Encode(kind, params)
	if err != nil {
		return nil, err
	}

	tx := &TxParams{
		Kind:         kind,
		Method:       method,
		Calldata:     calldata,
		Params:       params,
		To:           b.cfg.Contract,
		BorrowToken:  opp.BorrowToken,
		BorrowAmount: legs.amount,
		Intent:       intent,
	}
	copy(tx.Selector[:], b.abi.Methods[method].ID)
	return tx, nil
}

type legPlan struct {
	amount  *big.Int
	minOuts []*big.Int
}

// legs derives the borrow amount and per-hop minimum outputs for intent.
// Only minimums the kind encodes are checked for slippage.
func (b *Builder) legs(kind PathKind, opp *Opportunity, sim *SimulationResult, slippageBps uint32, intent SimulationIntent) (*legPlan, error) {
	plan := &legPlan{minOuts: make([]*big.Int, len(opp.Pools))}

	if intent == GasProbe {
		plan.amount = big.NewInt(1)
		for i := range plan.minOuts {
			plan.minOuts[i] = new(big.Int)
		}
		return plan, nil
	}

	if sim == nil || sim.AmountIn == nil || len(sim.HopOutputs) != len(opp.Pools) {
		return nil, fmt.Errorf("%w: simulation does not cover the path", ErrParamBuild)
	}
	if opp.BorrowAmount != nil && opp.BorrowAmount.Cmp(sim.AmountIn) != 0 {
		return nil, fmt.Errorf("%w: simulated %s but borrowing %s", ErrParamBuild, sim.AmountIn, opp.BorrowAmount)
	}
	plan.amount = new(big.Int).Set(sim.AmountIn)

	last := len(sim.HopOutputs) - 1
	for i, out := range sim.HopOutputs {
		minOut := ApplyBps(out, slippageBps)
		encoded := kind != PathTriangular || i == last
		if encoded && out.Sign() > 0 && minOut.Sign() == 0 {
			return nil, fmt.Errorf("%w: hop %d simulated %s at %d bps", ErrSlippage, i, out, slippageBps)
		}
		plan.minOuts[i] = minOut
	}
	return plan, nil
}

// flashAmounts places amount on the side of the first pool holding the borrow token
func flashAmounts(opp *Opportunity, amount *big.Int) (common.Address, *big.Int, *big.Int, error) {
	first := opp.Pools[0]
	switch {
	case first.Token0.Equal(opp.BorrowToken):
		return first.Address, new(big.Int).Set(amount), new(big.Int), nil
	case first.Token1.Equal(opp.BorrowToken):
		return first.Address, new(big.Int), new(big.Int).Set(amount), nil
	}
	return common.Address{}, nil, nil, fmt.Errorf("%w: borrow token %s not in flash pool %s", ErrParamBuild, opp.BorrowToken, first.Address.Hex())
}

func feeTier(p *PoolState) *big.Int {
	return big.NewInt(int64(p.FeeBps) * 100)
}

func (b *Builder) tithe() (common.Address, *big.Int) {
	// zero bps disables the tithe whatever the recipient
	if b.cfg.TitheRecipient == (common.Address{}) || b.cfg.TitheBps == 0 {
		return common.Address{}, new(big.Int)
	}
	return b.cfg.TitheRecipient, big.NewInt(int64(b.cfg.TitheBps))
}

func (b *Builder) buildV3TwoHop(opp *Opportunity, legs *legPlan) (V3FlashParams, error) {
	pool, amount0, amount1, err := flashAmounts(opp, legs.amount)
	if err != nil {
		return V3FlashParams{}, err
	}
	recipient, bps := b.tithe()
	return V3FlashParams{
		TokenBorrow:       opp.BorrowToken.Address,
		AmountBorrow:      new(big.Int).Set(legs.amount),
		FlashPool:         pool,
		Amount0:           amount0,
		Amount1:           amount1,
		IntermediateToken: opp.PathTokens[1].Address,
		FeeLeg1:           feeTier(opp.Pools[0]),
		FeeLeg2:           feeTier(opp.Pools[1]),
		MinOut1:           legs.minOuts[0],
		MinOut2:           legs.minOuts[1],
		TitheRecipient:    recipient,
		TitheBps:          bps,
	}, nil
}

// buildTriangular guards only the final amount, intermediate hops may drift
func (b *Builder) buildTriangular(opp *Opportunity, legs *legPlan) (TriangularParams, error) {
	pool, amount0, amount1, err := flashAmounts(opp, legs.amount)
	if err != nil {
		return TriangularParams{}, err
	}
	recipient, bps := b.tithe()
	return TriangularParams{
		TokenBorrow:    opp.BorrowToken.Address,
		AmountBorrow:   new(big.Int).Set(legs.amount),
		FlashPool:      pool,
		Amount0:        amount0,
		Amount1:        amount1,
		TokenA:         opp.PathTokens[0].Address,
		TokenB:         opp.PathTokens[1].Address,
		TokenC:         opp.PathTokens[2].Address,
		Fee1:           feeTier(opp.Pools[0]),
		Fee2:           feeTier(opp.Pools[1]),
		Fee3:           feeTier(opp.Pools[2]),
		MinOutFinal:    legs.minOuts[2],
		TitheRecipient: recipient,
		TitheBps:       bps,
	}, nil
}

func (b *Builder) buildMixed(opp *Opportunity, legs *legPlan) (MixedDexParams, error) {
	// the loan comes from the lending pool but the first leg must still start from the borrow token
	if !opp.Pools[0].HasToken(opp.BorrowToken) {
		return MixedDexParams{}, fmt.Errorf("%w: borrow token %s not in first pool %s", ErrParamBuild, opp.BorrowToken, opp.Pools[0].Address.Hex())
	}
	dex1, router1, fee1, err := b.mixedLeg(opp.Pools[0])
	if err != nil {
		return MixedDexParams{}, err
	}
	dex2, router2, fee2, err := b.mixedLeg(opp.Pools[1])
	if err != nil {
		return MixedDexParams{}, err
	}
	recipient, bps := b.tithe()
	return MixedDexParams{
		TokenBorrow:       opp.BorrowToken.Address,
		AmountBorrow:      new(big.Int).Set(legs.amount),
		IntermediateToken: opp.PathTokens[1].Address,
		DexLeg1:           dex1,
		RouterLeg1:        router1,
		FeeLeg1:           fee1,
		MinOut1:           legs.minOuts[0],
		DexLeg2:           dex2,
		RouterLeg2:        router2,
		FeeLeg2:           fee2,
		MinOut2:           legs.minOuts[1],
		TitheRecipient:    recipient,
		TitheBps:          bps,
	}, nil
}

func (b *Builder) mixedLeg(p *PoolState) (uint8, common.Address, *big.Int, error) {
	router, ok := b.cfg.Routers[p.DEX]
	if !ok {
		return 0, common.Address{}, nil, fmt.Errorf("%w: no router configured for %q", ErrConfig, p.DEX)
	}
	if p.Kind == ConstantProduct {
		return DexConstantProduct, router, new(big.Int), nil
	}
	return DexConcentrated, router, feeTier(p), nil
}

// DecodeParams reverses Build's encoding, returning a V3FlashParams, TriangularParams or MixedDexParams
func (b *Builder) DecodeParams(calldata []byte) (PathKind, any, error) {
	if len(calldata) < 4 {
		return 0, nil, fmt.Errorf("%w: calldata too short", ErrParamBuild)
	}
	method, err := b.abi.MethodById(calldata[:4])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrParamBuild, err)
	}
	out, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to unpack %s: %v", ErrParamBuild, method.Name, err)
	}
	if len(out) != 1 {
		return 0, nil, fmt.Errorf("%w: %s has %d inputs", ErrParamBuild, method.Name, len(out))
	}

	switch method.Name {
	case PathV3TwoHop.Method():
		return PathV3TwoHop, *abi.ConvertType(out[0], new(V3FlashParams)).(*V3FlashParams), nil
	case PathTriangular.Method():
		return PathTriangular, *abi.ConvertType(out[0], new(TriangularParams)).(*TriangularParams), nil
	case PathMixedDex.Method():
		return PathMixedDex, *abi.ConvertType(out[0], new(MixedDexParams)).(*MixedDexParams), nil
	}
	return 0, nil, fmt.Errorf("%w: unknown method %s", ErrParamBuild, method.Name)
}

// Encode packs params, as returned by DecodeParams, back into calldata
func (b *Builder) Encode(kind PathKind, params any) ([]byte, error) {
	calldata, err := b.abi.Pack(kind.Method(), params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to pack %s: %v", ErrParamBuild, kind.Method(), err)
	}
	return calldata, nil
}
