package pools

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/pulkyeet/flash-arb/internal/eth"
)

var (
	weth = arbitrage.Token{Address: eth.WETHAddress, Decimals: 18, Symbol: "WETH", ChainID: 1}
	usdc = arbitrage.Token{Address: eth.USDCAddress, Decimals: 6, Symbol: "USDC", ChainID: 1}
)

type v2Fixture struct {
	reserve0, reserve1 *big.Int
}

type v3Fixture struct {
	sqrtPrice *big.Int
	tick      int32
	liquidity *big.Int
	spacing   int32
	bitmap    map[int16]*big.Int
	nets      map[int32]*big.Int
}

// fakeNode answers pool reads from fixtures, keyed by address
type fakeNode struct {
	mu     sync.Mutex
	block  uint64
	v2     map[common.Address]v2Fixture
	v3     map[common.Address]*v3Fixture
	broken map[common.Address]bool
	calls  map[string]int
	blocks []uint64
}

func newFakeNode(block uint64) *fakeNode {
	return &fakeNode{
		block:  block,
		v2:     make(map[common.Address]v2Fixture),
		v3:     make(map[common.Address]*v3Fixture),
		broken: make(map[common.Address]bool),
		calls:  make(map[string]int),
	}
}

func (n *fakeNode) BlockNumber(context.Context) (uint64, error) {
	return n.block, nil
}

func (n *fakeNode) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if block != nil {
		n.blocks = append(n.blocks, block.Uint64())
	}
	pool := *msg.To
	if n.broken[pool] {
		return nil, errors.New("execution reverted")
	}

	if fx, ok := n.v2[pool]; ok {
		method, err := v2PairABI.MethodById(msg.Data[:4])
		if err != nil {
			return nil, err
		}
		n.calls[method.Name]++
		return method.Outputs.Pack(fx.reserve0, fx.reserve1, uint32(1_700_000_000))
	}

	fx, ok := n.v3[pool]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", pool.Hex())
	}
	method, err := v3PoolABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	n.calls[method.Name]++
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "slot0":
		return method.Outputs.Pack(fx.sqrtPrice, big.NewInt(int64(fx.tick)), uint16(0), uint16(1), uint16(1), uint8(0), true)
	case "liquidity":
		return method.Outputs.Pack(fx.liquidity)
	case "tickSpacing":
		return method.Outputs.Pack(big.NewInt(int64(fx.spacing)))
	case "tickBitmap":
		w, ok := fx.bitmap[args[0].(int16)]
		if !ok {
			w = new(big.Int)
		}
		return method.Outputs.Pack(w)
	case "ticks":
		tick := int32(args[0].(*big.Int).Int64())
		net, ok := fx.nets[tick]
		if !ok {
			net = new(big.Int)
		}
		gross := new(big.Int).Abs(net)
		zero := new(big.Int)
		return method.Outputs.Pack(gross, net, zero, zero, zero, zero, uint32(0), net.Sign() != 0)
	}
	return nil, fmt.Errorf("unexpected method %s", method.Name)
}

// setTicks fills the bitmap and liquidityNet table from a tick -> net map
func (fx *v3Fixture) setTicks(nets map[int32]*big.Int) {
	fx.bitmap = make(map[int16]*big.Int)
	fx.nets = nets
	for tick := range nets {
		compressed := tick / fx.spacing
		if tick < 0 && tick%fx.spacing != 0 {
			compressed--
		}
		word, bit := position(compressed)
		w, ok := fx.bitmap[word]
		if !ok {
			w = new(big.Int)
			fx.bitmap[word] = w
		}
		w.SetBit(w, int(bit), 1)
	}
}
