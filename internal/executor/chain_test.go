package executor

import (
	"context"
	"io"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeChain is a scripted node
type fakeChain struct {
	mu sync.Mutex

	pending      uint64
	pendingErr   error
	pendingCalls int

	estimate    uint64
	estimateErr error
	estimates   []ethereum.CallMsg

	callErr error

	sendErr error
	sent    []*types.Transaction

	receiptStatus uint64
	receiptBlock  uint64
	receiptAfter  int // polls answered with NotFound first
	receiptPolls  int

	head []uint64 // successive BlockNumber answers, the last one repeats
}

func (c *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCalls++
	return c.pending, c.pendingErr
}

func (c *fakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimates = append(c.estimates, msg)
	return c.estimate, c.estimateErr
}

func (c *fakeChain) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, c.callErr
}

func (c *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	// the node now counts the transaction as pending
	c.pending = tx.Nonce() + 1
	return nil
}

func (c *fakeChain) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptPolls++
	if c.receiptPolls <= c.receiptAfter {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:      c.receiptStatus,
		BlockNumber: new(big.Int).SetUint64(c.receiptBlock),
		GasUsed:     180_000,
	}, nil
}

func (c *fakeChain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.head) == 0 {
		return c.receiptBlock, nil
	}
	n := c.head[0]
	if len(c.head) > 1 {
		c.head = c.head[1:]
	}
	return n, nil
}

type staticFees struct {
	data *arbitrage.FeeData
	err  error
}

func (f staticFees) FeeData(context.Context) (*arbitrage.FeeData, error) {
	return f.data, f.err
}

// revertError mimics a node error carrying revert data
type revertError struct {
	msg  string
	data interface{}
}

func (e *revertError) Error() string          { return e.msg }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.data }
