package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ExtraDataLimit bounds a header's ExtraData field.
const ExtraDataLimit = 32

// DefaultSlotSize and DefaultEpochSize seed the genesis header when the
// caller does not override them.
const (
	DefaultSlotSize  uint64 = 10
	DefaultEpochSize uint64 = 100
)

const headerCacheSize = 256

// Chain wraps a VM and a Freezer to apply transactions, forge blocks,
// and serve the canonical chain. Forging, importing, and applying
// transactions are single-threaded with respect to each other; callers
// share one Chain behind its own mutex the way Node does.
type Chain struct {
	mu     sync.Mutex
	vm     VM
	state  StateDB
	frz    *Freezer
	head   *Header
	cache  *lru.Cache[Hash, *Header]
}

// NewChain constructs a Chain over an already-open Freezer and initial
// state. It does not itself create a genesis block; call InitGenesis or
// ImportBlock with a genesis header to seed the chain.
func NewChain(frz *Freezer, vm VM, state StateDB) *Chain {
	cache, err := lru.New[Hash, *Header](headerCacheSize)
	if err != nil {
		panic(fmt.Sprintf("chain: create header cache: %v", err))
	}
	return &Chain{vm: vm, state: state, frz: frz, cache: cache}
}

// GetVM returns the chain's VM, the narrow seam external execution
// engines plug into.
func (c *Chain) GetVM() VM { return c.vm }

// CreateUnsignedTransaction builds a Transaction value from its parts;
// signing is the caller's responsibility.
func (c *Chain) CreateUnsignedTransaction(nonce, gasPrice, gas uint64, to Address, value uint64, data []byte) Transaction {
	return Transaction{Nonce: nonce, GasPrice: gasPrice, Gas: gas, To: to, Value: value, Data: data}
}

// ApplyTransaction runs tx against the chain's current state via the VM.
func (c *Chain) ApplyTransaction(tx *SignedTransaction) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vm.ApplyTransaction(c.state, tx)
}

// GetCanonicalHead returns the current chain tip.
func (c *Chain) GetCanonicalHead() *Header {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// GetCanonicalBlockByNumber returns the header stored at n, checking the
// in-memory cache before the freezer.
func (c *Chain) GetCanonicalBlockByNumber(n uint64) (*Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCanonicalBlockByNumberLocked(n)
}

func (c *Chain) getCanonicalBlockByNumberLocked(n uint64) (*Header, error) {
	for _, h := range c.cache.Values() {
		if h.Number == n {
			return h, nil
		}
	}
	h, err := c.frz.GetBlockHeaderByNumber(n)
	if err != nil {
		return nil, err
	}
	c.cache.Add(h.Hash(), h)
	return h, nil
}

// NewGenesisHeader builds the header for block 0, applying the
// succession rule's genesis branch directly: parent absent implies
// epoch 1, slot 1, epoch_block_number 1.
func NewGenesisHeader(slotSize, epochSize uint64) *Header {
	return &Header{Epoch: 1, Slot: 1, EpochBlockNumber: 1, SlotSize: slotSize, EpochSize: epochSize}
}

// InitGenesis seeds the chain with a caller-supplied genesis header and
// initial state, persisting it as block 0.
func (c *Chain) InitGenesis(genesis *Header, state StateDB) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !genesis.IsGenesis() {
		return fmt.Errorf("chain: InitGenesis requires a genesis header")
	}
	c.state = state
	if err := c.frz.StoreBlock(&Block{Header: genesis}, nil); err != nil {
		return fmt.Errorf("chain: store genesis: %w", err)
	}
	c.head = genesis
	c.cache.Add(genesis.Hash(), genesis)
	return nil
}

// ForgeBlock runs pending against the chain's pre-state, finalizes a
// header from the accumulated gas/bloom/state-root, validates it, and
// persists it as the new head.
func (c *Chain) ForgeBlock(pending []*SignedTransaction, coinbase Address) (*Block, []*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.head == nil {
		return nil, nil, fmt.Errorf("chain: cannot forge before genesis is initialized")
	}

	receipts := make([]*Receipt, 0, len(pending))
	applied := make([]*SignedTransaction, 0, len(pending))
	var gasUsed uint64
	var bloom Bloom
	for _, tx := range pending {
		r, err := c.vm.ApplyTransaction(c.state, tx)
		if err != nil {
			continue
		}
		gasUsed += r.GasUsed
		bloom.Or(r.Bloom)
		receipts = append(receipts, r)
		applied = append(applied, tx)
	}

	header := c.createHeaderFromParent(c.head)
	header.Coinbase = coinbase
	header.Timestamp = uint64(time.Now().Unix())
	header.GasUsed = gasUsed
	header.Bloom = bloom
	header.StateRoot = c.state.Root()
	header.TxRoot = computeTxRoot(applied)
	header.ReceiptRoot = computeReceiptRoot(receipts)

	block := &Block{Header: header, Transactions: applied}
	if err := c.validateBlock(block, c.head, header.StateRoot); err != nil {
		return nil, nil, fmt.Errorf("chain: forged block failed validation: %w", err)
	}
	if err := c.frz.StoreBlock(block, receipts); err != nil {
		return nil, nil, fmt.Errorf("chain: persist forged block: %w", err)
	}
	c.head = header
	c.cache.Add(header.Hash(), header)
	return block, receipts, nil
}

// ImportBlock validates and persists a block learned from a peer,
// advancing the canonical head. The referenced state root is checked by
// replaying the block's transactions against the parent's state.
func (c *Chain) ImportBlock(block *Block, priorState StateDB) ([]*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, err := c.resolveParentLocked(block.Header)
	if err != nil {
		return nil, fmt.Errorf("chain: resolve parent: %w", err)
	}

	receipts := make([]*Receipt, 0, len(block.Transactions))
	var bloom Bloom
	for _, tx := range block.Transactions {
		r, err := c.vm.ApplyTransaction(priorState, tx)
		if err != nil {
			return nil, fmt.Errorf("chain: apply imported transaction: %w", err)
		}
		bloom.Or(r.Bloom)
		receipts = append(receipts, r)
	}
	computedRoot := priorState.Root()

	if err := c.validateBlock(block, parent, computedRoot); err != nil {
		return nil, fmt.Errorf("chain: imported block failed validation: %w", err)
	}
	if err := c.frz.StoreBlock(block, receipts); err != nil {
		return nil, fmt.Errorf("chain: persist imported block: %w", err)
	}
	c.state = priorState
	c.head = block.Header
	c.cache.Add(block.Header.Hash(), block.Header)
	return receipts, nil
}

func (c *Chain) resolveParentLocked(h *Header) (*Header, error) {
	if h.IsGenesis() {
		return nil, nil
	}
	if h.Number == 0 {
		return nil, fmt.Errorf("non-genesis-shaped header claims block number 0")
	}
	return c.getCanonicalBlockByNumberLocked(h.Number - 1)
}

// validateBlock enforces the chain's block validation rules. parent is
// nil for a genesis block.
func (c *Chain) validateBlock(block *Block, parent *Header, expectedStateRoot Hash) error {
	h := block.Header
	if !h.IsGenesis() {
		if parent == nil {
			return fmt.Errorf("non-genesis block has no resolvable parent")
		}
		if parent.Hash() != h.ParentHash {
			return fmt.Errorf("parent hash mismatch")
		}
	}
	if computeTxRoot(block.Transactions) != h.TxRoot {
		return fmt.Errorf("transaction root mismatch")
	}
	if h.StateRoot != expectedStateRoot {
		return fmt.Errorf("state root does not match computed post-state")
	}
	if len(h.ExtraData) > ExtraDataLimit {
		return fmt.Errorf("extra data exceeds limit of %d bytes", ExtraDataLimit)
	}
	return nil
}

// createHeaderFromParent implements the epoch/slot succession rule,
// including its non-obvious guard: the epoch only rolls over when the
// parent's epoch_block_number has already overrun the slot size *and*
// the parent sat on the last slot of the epoch.
func (c *Chain) createHeaderFromParent(parent *Header) *Header {
	h := &Header{ParentHash: parent.Hash(), Number: parent.Number + 1, SlotSize: parent.SlotSize, EpochSize: parent.EpochSize}
	if parent.EpochBlockNumber > parent.SlotSize && parent.Slot == parent.SlotSize-1 {
		h.Epoch = parent.Epoch + 1
		h.Slot = 1
		h.EpochBlockNumber = 1
	} else {
		h.Epoch = parent.Epoch
		h.Slot = parent.Slot + 1
		h.EpochBlockNumber = parent.EpochBlockNumber + 1
	}
	return h
}

func computeTxRoot(txs []*SignedTransaction) Hash {
	b, err := rlp.EncodeToBytes(signedTxsToRLP(txs))
	if err != nil {
		panic(fmt.Sprintf("chain: encode tx root input: %v", err))
	}
	return BytesToHash(crypto.Keccak256(b))
}

func computeReceiptRoot(receipts []*Receipt) Hash {
	b, err := rlp.EncodeToBytes(receiptsToRLP(receipts))
	if err != nil {
		panic(fmt.Sprintf("chain: encode receipt root input: %v", err))
	}
	return BytesToHash(crypto.Keccak256(b))
}
