package core

import (
	"testing"
	"time"
)

func signedTestTx(t *testing.T, nonce uint64) *SignedTransaction {
	t.Helper()
	priv, err := genTestKey()
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tx, err := SignTransaction(Transaction{Nonce: nonce, To: BytesToAddress([]byte{1}), Value: 1}, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func TestMempoolAddRemoveLeavesCountUnchanged(t *testing.T) {
	mp := NewMempool(0)
	tx := signedTestTx(t, 1)
	mp.Add(tx)
	if mp.Count() != 1 {
		t.Fatalf("expected count 1, got %d", mp.Count())
	}
	if !mp.Remove(tx.Hash()) {
		t.Fatal("expected remove to report success")
	}
	if mp.Count() != 0 {
		t.Fatalf("expected count 0 after remove, got %d", mp.Count())
	}
}

func TestMempoolAddNDistinctYieldsCountN(t *testing.T) {
	mp := NewMempool(0)
	for i := uint64(0); i < 5; i++ {
		mp.Add(signedTestTx(t, i))
	}
	if mp.Count() != 5 {
		t.Fatalf("expected count 5, got %d", mp.Count())
	}
}

func TestMempoolSwapRemoveKeepsIndexConsistent(t *testing.T) {
	mp := NewMempool(0)
	txs := make([]*SignedTransaction, 5)
	for i := range txs {
		txs[i] = signedTestTx(t, uint64(i))
		mp.Add(txs[i])
	}
	// Remove a middle entry; the swapped-in last entry must remain gettable.
	mp.Remove(txs[1].Hash())
	if mp.Count() != 4 {
		t.Fatalf("expected count 4, got %d", mp.Count())
	}
	if _, ok := mp.Get(txs[4].Hash()); !ok {
		t.Fatal("expected swapped-in last entry to remain indexed")
	}
	for _, tx := range []*SignedTransaction{txs[0], txs[2], txs[3], txs[4]} {
		if _, ok := mp.Get(tx.Hash()); !ok {
			t.Fatalf("expected %s to remain present", tx.Hash().Hex())
		}
	}
}

func TestMempoolRemoveUnknownHashIsNoop(t *testing.T) {
	mp := NewMempool(0)
	if mp.Remove(BytesToHash([]byte("nope"))) {
		t.Fatal("expected remove of unknown hash to report false")
	}
}

func TestMempoolExpirySweepReducesCountToZero(t *testing.T) {
	mp := NewMempool(10 * time.Millisecond)
	mp.Add(signedTestTx(t, 1))
	mp.Add(signedTestTx(t, 2))
	if mp.Count() != 2 {
		t.Fatalf("expected count 2, got %d", mp.Count())
	}
	removed := mp.sweepExpired(time.Now().Add(20 * time.Millisecond))
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if mp.Count() != 0 {
		t.Fatalf("expected count 0 after expiry, got %d", mp.Count())
	}
}
