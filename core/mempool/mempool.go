package mempool

import (
	"errors"
	"fmt"
	"sync"

	"healthledger/core/types"
)

// ErrPoolFull is returned by Enqueue when a bounded pool is at capacity.
// Callers should retry after the next commit.
var ErrPoolFull = errors.New("pending pool full")

// Mempool holds transactions accepted but not yet sealed into a block, in
// arrival order. Enqueue may be called from any goroutine; Drain and Requeue
// belong to the commit path.
type Mempool struct {
	mu       sync.Mutex
	txs      []types.Transaction
	capacity int // 0 means unbounded
}

// NewMempool creates a pool. A capacity of 0 or less leaves it unbounded.
func NewMempool(capacity int) *Mempool {
	if capacity < 0 {
		capacity = 0
	}
	return &Mempool{capacity: capacity}
}

// Enqueue appends tx to the tail. Nothing is ever evicted: a full pool
// rejects the newcomer instead.
func (mp *Mempool) Enqueue(tx types.Transaction) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.capacity > 0 && len(mp.txs) >= mp.capacity {
		return fmt.Errorf("%w: %d/%d pending", ErrPoolFull, len(mp.txs), mp.capacity)
	}
	mp.txs = append(mp.txs, tx)
	return nil
}

// Drain removes and returns every queued transaction in FIFO order. An empty
// pool yields an empty slice.
func (mp *Mempool) Drain() []types.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := mp.txs
	mp.txs = nil
	if out == nil {
		out = []types.Transaction{}
	}
	return out
}

// Requeue puts a drained batch back at the head of the pool, ahead of
// anything enqueued since, after a commit failed. Capacity is not enforced
// here: these transactions were already accepted once.
func (mp *Mempool) Requeue(txs []types.Transaction) {
	if len(txs) == 0 {
		return
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	merged := make([]types.Transaction, 0, len(txs)+len(mp.txs))
	merged = append(merged, txs...)
	merged = append(merged, mp.txs...)
	mp.txs = merged
}

// IsEmpty reports whether nothing is queued.
func (mp *Mempool) IsEmpty() bool {
	return mp.Len() == 0
}

// Len returns the number of queued transactions.
func (mp *Mempool) Len() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return len(mp.txs)
}

// GetTx returns a queued transaction by id (and bool for existence)
func (mp *Mempool) GetTx(txID string) (types.Transaction, bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	for _, tx := range mp.txs {
		if tx.ID == txID {
			return tx, true
		}
	}
	return types.Transaction{}, false
}

// GetAllTxs returns a copy of the queue in FIFO order
func (mp *Mempool) GetAllTxs() []types.Transaction {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]types.Transaction(nil), mp.txs...)
}
