package core

import (
	"math/big"
	"testing"

	"cascade-chain/internal/testutil"
)

func newTestChain(t *testing.T) (*Chain, *MemState) {
	t.Helper()
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	t.Cleanup(func() { _ = sb.Cleanup() })
	frz := NewFreezer(sb.Root)
	state := NewMemState()
	chain := NewChain(frz, MemVM{}, state)
	genesis := NewGenesisHeader(DefaultSlotSize, DefaultEpochSize)
	if err := chain.InitGenesis(genesis, state); err != nil {
		t.Fatalf("init genesis: %v", err)
	}
	return chain, state
}

func TestChainForgeBlockAdvancesHead(t *testing.T) {
	chain, _ := newTestChain(t)
	block, _, err := chain.ForgeBlock(nil, BytesToAddress([]byte{1}))
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	if block.Header.Number != 1 {
		t.Fatalf("expected block number 1, got %d", block.Header.Number)
	}
	if chain.GetCanonicalHead().Hash() != block.Header.Hash() {
		t.Fatal("head must advance to the forged block")
	}
}

func TestChainEpochSlotSuccession(t *testing.T) {
	chain, _ := newTestChain(t)
	genesis := chain.GetCanonicalHead()
	if genesis.Epoch != 1 || genesis.Slot != 1 || genesis.EpochBlockNumber != 1 {
		t.Fatalf("unexpected genesis epoch/slot: %+v", genesis)
	}
	block1, _, err := chain.ForgeBlock(nil, Address{})
	if err != nil {
		t.Fatalf("forge 1: %v", err)
	}
	if block1.Header.Epoch != 1 || block1.Header.Slot != 2 || block1.Header.EpochBlockNumber != 2 {
		t.Fatalf("unexpected succession from genesis: %+v", block1.Header)
	}
}

func TestChainForgeBlockAppliesTransactionsAndUpdatesState(t *testing.T) {
	chain, state := newTestChain(t)
	priv, err := genTestKey()
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	sender := pubkeyAddress(priv)
	state.SetAccount(sender, Account{Balance: big.NewInt(1000)})
	recipient := BytesToAddress([]byte{7})
	tx, err := SignTransaction(Transaction{Nonce: 0, GasPrice: 1, Gas: 5, To: recipient, Value: 50}, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	block, receipts, err := chain.ForgeBlock([]*SignedTransaction{tx}, Address{})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	if len(block.Transactions) != 1 || len(receipts) != 1 {
		t.Fatalf("expected one applied transaction and receipt, got %d/%d", len(block.Transactions), len(receipts))
	}
	if state.GetAccount(recipient).Balance.Cmp(big.NewInt(50)) != 0 {
		t.Fatal("recipient balance not updated by forged block")
	}
}

func TestChainForgeBlockSkipsInvalidTransactions(t *testing.T) {
	chain, _ := newTestChain(t)
	priv, err := genTestKey()
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	badTx, err := SignTransaction(Transaction{Nonce: 99, To: BytesToAddress([]byte{1}), Value: 1}, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	block, receipts, err := chain.ForgeBlock([]*SignedTransaction{badTx}, Address{})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	if len(block.Transactions) != 0 || len(receipts) != 0 {
		t.Fatal("invalid transaction should have been skipped, not included")
	}
}

func TestChainGetCanonicalBlockByNumberAfterForge(t *testing.T) {
	chain, _ := newTestChain(t)
	forged, _, err := chain.ForgeBlock(nil, Address{})
	if err != nil {
		t.Fatalf("forge: %v", err)
	}
	got, err := chain.GetCanonicalBlockByNumber(1)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if got.Hash() != forged.Header.Hash() {
		t.Fatal("retrieved header must match forged header")
	}
}
