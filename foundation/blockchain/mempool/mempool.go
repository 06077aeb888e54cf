// Package mempool maintains the pool of pending transactions for a miner.
package mempool

import (
	"sync"
)

// Mempool represents an ordered cache of transactions deduplicated by their
// exact text.
type Mempool struct {
	mu    sync.RWMutex
	order []string
	index map[string]struct{}
}

// New constructs a new empty mempool.
func New() *Mempool {
	return &Mempool{
		index: make(map[string]struct{}),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.order)
}

// Upsert adds a transaction to the end of the pool if the same text is not
// already pooled. It reports whether the transaction was added and the
// resulting size of the pool.
func (mp *Mempool) Upsert(tx string) (bool, int) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.index[tx]; exists {
		return false, len(mp.order)
	}

	mp.index[tx] = struct{}{}
	mp.order = append(mp.order, tx)

	return true, len(mp.order)
}

// Contains reports whether the transaction is pooled.
func (mp *Mempool) Contains(tx string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.index[tx]
	return exists
}

// Delete removes the specified transactions from the pool, keeping the order
// of the rest.
func (mp *Mempool) Delete(txs ...string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	drop := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if _, exists := mp.index[tx]; exists {
			drop[tx] = struct{}{}
			delete(mp.index, tx)
		}
	}

	if len(drop) == 0 {
		return
	}

	kept := mp.order[:0]
	for _, tx := range mp.order {
		if _, exists := drop[tx]; !exists {
			kept = append(kept, tx)
		}
	}
	mp.order = kept
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.order = nil
	mp.index = make(map[string]struct{})
}

// PickBest returns the oldest transactions for the next block. A value of -1
// returns every pooled transaction.
func (mp *Mempool) PickBest(howMany int) []string {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if howMany < 0 || howMany > len(mp.order) {
		howMany = len(mp.order)
	}

	txs := make([]string, howMany)
	copy(txs, mp.order[:howMany])

	return txs
}

// Copy returns every pooled transaction in arrival order.
func (mp *Mempool) Copy() []string {
	return mp.PickBest(-1)
}
