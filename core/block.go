package core

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// BloomSize matches the width of an Ethereum-style log bloom filter.
const BloomSize = 256

// Bloom is an OR-accumulator of receipt blooms for a block.
type Bloom [BloomSize]byte

// Or ORs other into b in place.
func (b *Bloom) Or(other Bloom) {
	for i := range b {
		b[i] |= other[i]
	}
}

// headerRLP is the exact field layout hashed and persisted for a Header.
// Kept separate from Header so the lazily-computed hash cache never
// participates in its own preimage.
type headerRLP struct {
	ParentHash       Hash
	Coinbase         Address
	StateRoot        Hash
	TxRoot           Hash
	ReceiptRoot      Hash
	Bloom            Bloom
	Number           uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	Epoch            uint64
	Slot             uint64
	EpochBlockNumber uint64
	SlotSize         uint64
	EpochSize        uint64
}

// Header is the immutable-after-construction block header. Timestamp of
// 0 stands in for "unset" and is only legal at genesis (ParentHash
// all-zero and Number 0).
type Header struct {
	ParentHash       Hash
	Coinbase         Address
	StateRoot        Hash
	TxRoot           Hash
	ReceiptRoot      Hash
	Bloom            Bloom
	Number           uint64
	GasUsed          uint64
	Timestamp        uint64
	ExtraData        []byte
	Epoch            uint64
	Slot             uint64
	EpochBlockNumber uint64
	SlotSize         uint64
	EpochSize        uint64

	hashOnce sync.Once
	hashVal  Hash
}

// IsGenesis reports whether h is the genesis header: zero parent hash
// and block number zero.
func (h *Header) IsGenesis() bool {
	return h.ParentHash.IsZero() && h.Number == 0
}

func (h *Header) rlpView() headerRLP {
	return headerRLP{
		ParentHash: h.ParentHash, Coinbase: h.Coinbase, StateRoot: h.StateRoot,
		TxRoot: h.TxRoot, ReceiptRoot: h.ReceiptRoot, Bloom: h.Bloom,
		Number: h.Number, GasUsed: h.GasUsed, Timestamp: h.Timestamp,
		ExtraData: h.ExtraData, Epoch: h.Epoch, Slot: h.Slot,
		EpochBlockNumber: h.EpochBlockNumber, SlotSize: h.SlotSize, EpochSize: h.EpochSize,
	}
}

// EncodeRLP implements rlp.Encoder directly over the header's own fields
// so external callers can rlp.Encode(header) without reaching for the
// unexported view type.
func (h *Header) EncodeRLP(w interface{ Write([]byte) (int, error) }) error {
	b, err := rlp.EncodeToBytes(h.rlpView())
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Hash returns the memoized keccak256(rlp(header)) digest.
func (h *Header) Hash() Hash {
	h.hashOnce.Do(func() {
		b, err := rlp.EncodeToBytes(h.rlpView())
		if err != nil {
			panic(fmt.Sprintf("block: rlp encode header: %v", err))
		}
		h.hashVal = BytesToHash(crypto.Keccak256(b))
	})
	return h.hashVal
}

// Validate enforces the header's structural invariants: a non-genesis
// timestamp must be set, and genesis recognition must be self-consistent
// (zero parent hash iff block number zero).
func (h *Header) Validate() error {
	if h.ParentHash.IsZero() != (h.Number == 0) {
		return fmt.Errorf("block: zero parent hash and block number 0 must coincide")
	}
	if !h.IsGenesis() && h.Timestamp == 0 {
		return fmt.Errorf("block: non-genesis header must carry a timestamp")
	}
	return nil
}

// HeaderJSON is the hex-encoded wire representation of a Header used in
// BLOCK response payloads.
type HeaderJSON struct {
	ParentHash       string `json:"parent_hash"`
	Coinbase         string `json:"coinbase"`
	StateRoot        string `json:"state_root"`
	TxRoot           string `json:"tx_root"`
	ReceiptRoot      string `json:"receipt_root"`
	Bloom            string `json:"bloom"`
	Number           uint64 `json:"number"`
	GasUsed          uint64 `json:"gas_used"`
	Timestamp        uint64 `json:"timestamp"`
	ExtraData        string `json:"extra_data"`
	Epoch            uint64 `json:"epoch"`
	Slot             uint64 `json:"slot"`
	EpochBlockNumber uint64 `json:"epoch_block_number"`
	SlotSize         uint64 `json:"slot_size"`
	EpochSize        uint64 `json:"epoch_size"`
}

// ToJSON renders h as its hex-encoded wire form.
func (h *Header) ToJSON() HeaderJSON {
	return HeaderJSON{
		ParentHash: h.ParentHash.Hex(), Coinbase: h.Coinbase.Hex(),
		StateRoot: h.StateRoot.Hex(), TxRoot: h.TxRoot.Hex(), ReceiptRoot: h.ReceiptRoot.Hex(),
		Bloom: "0x" + hex.EncodeToString(h.Bloom[:]), Number: h.Number, GasUsed: h.GasUsed,
		Timestamp: h.Timestamp, ExtraData: "0x" + hex.EncodeToString(h.ExtraData),
		Epoch: h.Epoch, Slot: h.Slot, EpochBlockNumber: h.EpochBlockNumber,
		SlotSize: h.SlotSize, EpochSize: h.EpochSize,
	}
}

// HeaderFromJSON reconstructs a Header from its wire form.
func HeaderFromJSON(j HeaderJSON) (*Header, error) {
	parent, err := decodeHash(j.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("block: parent_hash: %w", err)
	}
	coinbase, err := decodeAddress(j.Coinbase)
	if err != nil {
		return nil, fmt.Errorf("block: coinbase: %w", err)
	}
	stateRoot, err := decodeHash(j.StateRoot)
	if err != nil {
		return nil, fmt.Errorf("block: state_root: %w", err)
	}
	txRoot, err := decodeHash(j.TxRoot)
	if err != nil {
		return nil, fmt.Errorf("block: tx_root: %w", err)
	}
	receiptRoot, err := decodeHash(j.ReceiptRoot)
	if err != nil {
		return nil, fmt.Errorf("block: receipt_root: %w", err)
	}
	bloomBytes, err := hexDecode(j.Bloom)
	if err != nil {
		return nil, fmt.Errorf("block: bloom: %w", err)
	}
	var bloom Bloom
	copy(bloom[:], bloomBytes)
	extra, err := hexDecode(j.ExtraData)
	if err != nil {
		return nil, fmt.Errorf("block: extra_data: %w", err)
	}
	return &Header{
		ParentHash: parent, Coinbase: coinbase, StateRoot: stateRoot,
		TxRoot: txRoot, ReceiptRoot: receiptRoot, Bloom: bloom,
		Number: j.Number, GasUsed: j.GasUsed, Timestamp: j.Timestamp, ExtraData: extra,
		Epoch: j.Epoch, Slot: j.Slot, EpochBlockNumber: j.EpochBlockNumber,
		SlotSize: j.SlotSize, EpochSize: j.EpochSize,
	}, nil
}

func decodeHash(s string) (Hash, error) {
	b, err := hexDecode(s)
	if err != nil {
		return Hash{}, err
	}
	return BytesToHash(b), nil
}

func decodeAddress(s string) (Address, error) {
	b, err := hexDecode(s)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(b), nil
}

func hexDecode(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

// Block pairs a header with its ordered transactions. Receipts live
// alongside the block in the freezer, not in the header preimage.
type Block struct {
	Header       *Header
	Transactions []*SignedTransaction
}

func (b *Block) Hash() Hash { return b.Header.Hash() }
