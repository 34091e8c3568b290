package core

import (
	"sync"
	"time"
)

// DefaultTxExpireTime is how long an unconfirmed transaction may sit in
// the mempool before the expiry sweep evicts it.
const DefaultTxExpireTime = 300 * time.Second

// DefaultExpirySweepInterval is how often the cooperative sweep scans the
// mempool for expired entries.
const DefaultExpirySweepInterval = 5 * time.Second

type mempoolEntry struct {
	tx        *SignedTransaction
	insertedAt time.Time
}

// Mempool is a time-expiring collection of signed transactions, backed
// by an ordered vector plus a hash index so add/remove run in O(1) via
// swap-with-last removal. It has no size cap: entries leave only through
// Remove or the expiry sweep.
type Mempool struct {
	mu            sync.Mutex
	txExpireTime  time.Duration
	entries       []mempoolEntry
	indexByHash   map[Hash]int
}

// NewMempool constructs an empty mempool with the given expiry duration.
// A zero duration selects DefaultTxExpireTime.
func NewMempool(txExpireTime time.Duration) *Mempool {
	if txExpireTime <= 0 {
		txExpireTime = DefaultTxExpireTime
	}
	return &Mempool{txExpireTime: txExpireTime, indexByHash: map[Hash]int{}}
}

// Add inserts tx, recording its position and insertion time. No-op (but
// not an error) if the transaction is already present.
func (m *Mempool) Add(tx *SignedTransaction) {
	h := tx.Hash()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexByHash[h]; ok {
		return
	}
	m.indexByHash[h] = len(m.entries)
	m.entries = append(m.entries, mempoolEntry{tx: tx, insertedAt: time.Now()})
}

// Remove evicts the transaction identified by hash via swap-with-last,
// reporting whether it was present.
func (m *Mempool) Remove(hash Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(hash)
}

func (m *Mempool) removeLocked(hash Hash) bool {
	idx, ok := m.indexByHash[hash]
	if !ok {
		return false
	}
	last := len(m.entries) - 1
	if idx != last {
		m.entries[idx] = m.entries[last]
		m.indexByHash[m.entries[idx].tx.Hash()] = idx
	}
	m.entries = m.entries[:last]
	delete(m.indexByHash, hash)
	return true
}

// Count returns the number of pending transactions.
func (m *Mempool) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Get returns the pending transaction for hash, if present.
func (m *Mempool) Get(hash Hash) (*SignedTransaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexByHash[hash]
	if !ok {
		return nil, false
	}
	return m.entries[idx].tx, true
}

// sweepExpired removes every entry older than the mempool's expiry
// duration, evaluated against now.
func (m *Mempool) sweepExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	// Walk backwards so the swap-with-last shuffling of removeLocked
	// never skips an entry that was moved into the slot we just visited.
	for i := len(m.entries) - 1; i >= 0; i-- {
		if now.Sub(m.entries[i].insertedAt) > m.txExpireTime {
			m.removeLocked(m.entries[i].tx.Hash())
			removed++
		}
	}
	return removed
}

// RunExpirySweep blocks, sweeping expired entries every
// DefaultExpirySweepInterval, until stop is closed.
func (m *Mempool) RunExpirySweep(stop <-chan struct{}) {
	ticker := time.NewTicker(DefaultExpirySweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			m.sweepExpired(t)
		}
	}
}
