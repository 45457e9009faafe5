package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pulkyeet/flash-arb/internal/arbitrage"
	"github.com/sirupsen/logrus"
)

// Chain is the node surface the engine drives
type Chain interface {
	PendingNoncer
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// State is where an attempt stopped
type State string

const (
	StatePrepared       State = "prepared"
	StateNonceAssigned  State = "nonce_assigned"
	StateBroadcast      State = "broadcast"
	StateConfirmed      State = "confirmed"
	StateReverted       State = "reverted"
	StateBroadcastError State = "broadcast_error"
)

// ExecutionResult is terminal, nothing retries an attempt within a cycle
type ExecutionResult struct {
	State        State
	Success      bool
	DryRun       bool
	TxHash       *common.Hash
	Nonce        uint64
	GasLimit     uint64
	GasUsed      uint64
	BlockNumber  uint64
	RevertReason string
	Err          error
}

type Config struct {
	ChainID           *big.Int
	Confirmations     uint64
	ConfirmTimeout    time.Duration
	PollInterval      time.Duration
	GasLimitBufferPct uint64
	DryRun            bool
}

type Engine struct {
	chain  Chain
	fees   arbitrage.FeeSource
	signer Signer
	nonces *NonceManager
	cfg    Config
	logger *logrus.Logger
}

func NewEngine(chain Chain, fees arbitrage.FeeSource, signer Signer, nonces *NonceManager, cfg Config, logger *logrus.Logger) *Engine {
	if cfg.Confirmations == 0 {
		cfg.Confirmations = 1
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Engine{
		chain:  chain,
		fees:   fees,
		signer: signer,
		nonces: nonces,
		cfg:    cfg,
		logger: logger,
	}
}

// Execute takes one encoded call through prepare, nonce, broadcast and confirmation.
// A revert is a result, not an error; ErrPreflight skips, ErrBroadcast and ErrWaitTimeout fail the cycle.
func (e *Engine) Execute(ctx context.Context, params *arbitrage.TxParams) (*ExecutionResult, error) {
	res := &ExecutionResult{State: StatePrepared}
	fail := func(err error) (*ExecutionResult, error) {
		res.Err = err
		return res, err
	}

	// prepared
	if params.Intent == arbitrage.GasProbe {
		return fail(fmt.Errorf("%w: %w: gas probe calls are for estimation only", ErrPreflight, arbitrage.ErrParamBuild))
	}
	fees, err := e.fees.FeeData(ctx)
	if err != nil {
		return fail(fmt.Errorf("%w: %w: %v", ErrPreflight, arbitrage.ErrFeeDataUnavailable, err))
	}
	if err := validateFees(fees); err != nil {
		return fail(fmt.Errorf("%w: %w: %v", ErrPreflight, arbitrage.ErrFeeDataUnavailable, err))
	}

	msg := e.callMsg(params, fees)
	gas, err := e.chain.EstimateGas(ctx, msg)
	if err != nil {
		res.RevertReason = decodeRevert(err)
		return fail(fmt.Errorf("%w: %s", ErrPreflight, res.RevertReason))
	}
	if gas == 0 {
		return fail(fmt.Errorf("%w: zero gas estimate", ErrPreflight))
	}
	res.GasLimit = gas + gas*e.cfg.GasLimitBufferPct/100
	msg.Gas = res.GasLimit

	log := e.logger.WithFields(logrus.Fields{
		"method":   params.Method,
		"kind":     params.Kind.String(),
		"to":       params.To.Hex(),
		"borrow":   arbitrage.FormatFor(params.BorrowAmount, params.BorrowToken),
		"gas":      res.GasLimit,
		"calldata": hexutil.Encode(params.Calldata),
	})

	if e.cfg.DryRun {
		log.Info("dry run, transaction prepared but not sent")
		res.Success = true
		res.DryRun = true
		return res, nil
	}

	// nonce assigned
	nonce, err := e.nonces.Issue(ctx)
	if err != nil {
		return fail(err)
	}
	res.State = StateNonceAssigned
	res.Nonce = nonce

	// broadcast
	signed, err := e.signer.SignTx(e.newTx(nonce, res.GasLimit, params, fees), e.cfg.ChainID)
	if err != nil {
		res.State = StateBroadcastError
		e.resync(ctx)
		return fail(fmt.Errorf("%w: %v", ErrBroadcast, err))
	}
	if err := e.chain.SendTransaction(ctx, signed); err != nil {
		res.State = StateBroadcastError
		e.resync(ctx)
		return fail(fmt.Errorf("%w: nonce %d: %v", ErrBroadcast, nonce, err))
	}
	hash := signed.Hash()
	res.TxHash = &hash
	res.State = StateBroadcast
	log.WithFields(logrus.Fields{"tx": hash.Hex(), "nonce": nonce}).Info("transaction sent")

	// confirmed
	receipt, err := e.waitForReceipt(ctx, hash)
	if err != nil {
		return fail(fmt.Errorf("%w: %s: %v", ErrWaitTimeout, hash.Hex(), err))
	}
	res.GasUsed = receipt.GasUsed
	res.BlockNumber = receipt.BlockNumber.Uint64()

	if receipt.Status == types.ReceiptStatusSuccessful {
		res.State = StateConfirmed
		res.Success = true
		return res, nil
	}

	res.State = StateReverted
	res.RevertReason = e.replayRevert(ctx, msg, receipt.BlockNumber)
	e.resync(ctx)
	return res, nil
}

func (e *Engine) callMsg(params *arbitrage.TxParams, fees *arbitrage.FeeData) ethereum.CallMsg {
	to := params.To
	msg := ethereum.CallMsg{
		From: e.signer.Address(),
		To:   &to,
		Data: params.Calldata,
	}
	if fees.MaxFeePerGas != nil && fees.MaxFeePerGas.Sign() > 0 {
		msg.GasFeeCap = fees.MaxFeePerGas
		msg.GasTipCap = fees.MaxPriorityFeePerGas
	} else {
		msg.GasPrice = fees.GasPrice
	}
	return msg
}

// newTx is EIP-1559 when the quote has a max fee, legacy otherwise
func (e *Engine) newTx(nonce, gas uint64, params *arbitrage.TxParams, fees *arbitrage.FeeData) *types.Transaction {
	to := params.To
	if fees.MaxFeePerGas != nil && fees.MaxFeePerGas.Sign() > 0 {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   e.cfg.ChainID,
			Nonce:     nonce,
			GasTipCap: fees.MaxPriorityFeePerGas,
			GasFeeCap: fees.MaxFeePerGas,
			Gas:       gas,
			To:        &to,
			Value:     big.NewInt(0),
			Data:      params.Calldata,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: fees.GasPrice,
		Gas:      gas,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     params.Calldata,
	})
}

func (e *Engine) resync(ctx context.Context) {
	if err := e.nonces.Resync(ctx); err != nil {
		e.logger.WithError(err).Warn("nonce resync failed")
	}
}

// waitForReceipt polls until the receipt has the configured confirmations or the timeout hits
func (e *Engine) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := e.chain.TransactionReceipt(ctx, hash)
			if err != nil {
				if errors.Is(err, ethereum.NotFound) {
					continue
				}
				return nil, err
			}

			current, err := e.chain.BlockNumber(ctx)
			if err != nil {
				return nil, err
			}
			// the inclusion block is the first confirmation
			if current+1 >= receipt.BlockNumber.Uint64()+e.cfg.Confirmations {
				return receipt, nil
			}
			e.logger.WithFields(logrus.Fields{
				"tx":      hash.Hex(),
				"current": current,
				"mined":   receipt.BlockNumber.Uint64(),
			}).Debug("waiting for confirmations")
		}
	}
}

// replayRevert re-runs the call at the receipt block to recover the revert reason
func (e *Engine) replayRevert(ctx context.Context, msg ethereum.CallMsg, block *big.Int) string {
	_, err := e.chain.CallContract(ctx, msg, block)
	if err == nil {
		return ReasonDecodingFailed
	}
	return decodeRevert(err)
}

// decodeRevert extracts Error(string) from an RPC error's data, falling back to the message
func decodeRevert(err error) string {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			if reason, uerr := abi.UnpackRevert(data); uerr == nil {
				return reason
			}
			return hexutil.Encode(data)
		}
	}
	return err.Error()
}

func revertData(v interface{}) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		return b, err == nil && len(b) > 0
	case []byte:
		return d, len(d) > 0
	}
	return nil, false
}
