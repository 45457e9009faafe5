package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PendingNoncer reads the chain's pending nonce for an account
type PendingNoncer interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager owns the signer's nonce counter. All access is serialized by mu,
// and the counter is reconciled with the chain's pending count on every issue so
// transactions sent by other processes from the same key are tolerated.
type NonceManager struct {
	mu      sync.Mutex
	chain   PendingNoncer
	account common.Address
	next    uint64
}

func NewNonceManager(chain PendingNoncer, account common.Address) *NonceManager {
	return &NonceManager{chain: chain, account: account}
}

// Init loads the starting nonce from chain state
func (m *NonceManager) Init(ctx context.Context) error {
	return m.Resync(ctx)
}

// Issue returns max(next, pending) and advances past it
func (m *NonceManager) Issue(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.chain.PendingNonceAt(ctx, m.account)
	if err != nil {
		return 0, fmt.Errorf("%w: pending nonce for %s: %v", ErrNonce, m.account.Hex(), err)
	}
	n := max(m.next, pending)
	m.next = n + 1
	return n, nil
}

// Resync resets the counter to the chain's pending nonce, after a failed send or a revert
func (m *NonceManager) Resync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.chain.PendingNonceAt(ctx, m.account)
	if err != nil {
		return fmt.Errorf("%w: pending nonce for %s: %v", ErrNonce, m.account.Hex(), err)
	}
	m.next = pending
	return nil
}

// Next is the nonce the next Issue will return if the chain has not moved
func (m *NonceManager) Next() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next
}
