package core

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Account is one entry of the genesis/runtime state: address maps to
// balance, nonce, code, and storage.
type Account struct {
	Balance *big.Int
	Nonce   uint64
	Code    []byte
	Storage map[Hash]Hash
}

// StateDB is the narrow state surface the VM operates over. The concrete
// account-state trie, gas metering, and opcode dispatch are deliberately
// out of scope; this interface is the seam a real EVM-compatible engine
// plugs into.
type StateDB interface {
	GetAccount(Address) Account
	SetAccount(Address, Account)
	Root() Hash
}

// VM is the narrow execution surface the Chain drives. A production
// implementation lives outside this module; MemVM below is a reference
// implementation sufficient to drive block forging and its tests.
type VM interface {
	ApplyTransaction(state StateDB, tx *SignedTransaction) (*Receipt, error)
}

// MemState is an in-memory StateDB keyed by address. Its root is a
// keccak over the RLP encoding of its accounts sorted by address —
// a deterministic commitment, not a Merkle-Patricia trie, since trie
// construction belongs to the out-of-scope execution engine.
type MemState struct {
	accounts map[Address]Account
}

// NewMemState constructs an empty state.
func NewMemState() *MemState {
	return &MemState{accounts: map[Address]Account{}}
}

func (s *MemState) GetAccount(addr Address) Account {
	a, ok := s.accounts[addr]
	if !ok {
		return Account{Balance: big.NewInt(0)}
	}
	return a
}

func (s *MemState) SetAccount(addr Address, a Account) {
	s.accounts[addr] = a
}

type stateAccountRLP struct {
	Address Address
	Balance *big.Int
	Nonce   uint64
	Code    []byte
}

func (s *MemState) Root() Hash {
	addrs := make([]Address, 0, len(s.accounts))
	for a := range s.accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		for k := range addrs[i] {
			if addrs[i][k] != addrs[j][k] {
				return addrs[i][k] < addrs[j][k]
			}
		}
		return false
	})
	rows := make([]stateAccountRLP, len(addrs))
	for i, a := range addrs {
		acc := s.accounts[a]
		bal := acc.Balance
		if bal == nil {
			bal = big.NewInt(0)
		}
		rows[i] = stateAccountRLP{Address: a, Balance: bal, Nonce: acc.Nonce, Code: acc.Code}
	}
	b, err := rlp.EncodeToBytes(rows)
	if err != nil {
		panic(fmt.Sprintf("vm: encode state: %v", err))
	}
	return BytesToHash(crypto.Keccak256(b))
}

// MemVM is a minimal balance-transfer VM: it debits (value + gas*gasPrice)
// from the sender, credits value to the recipient, and bumps the
// sender's nonce. It exists to give Chain.ForgeBlock something concrete
// to drive; a production EVM-compatible engine replaces it entirely
// behind the VM interface.
type MemVM struct{}

// ApplyTransaction validates tx against state and, if valid, applies its
// balance transfer and returns a receipt. Invalid transactions (bad
// nonce, insufficient balance) are rejected rather than charged — gas
// accounting beyond the flat transfer cost is the execution engine's
// concern, not this reference VM's.
func (MemVM) ApplyTransaction(state StateDB, tx *SignedTransaction) (*Receipt, error) {
	from, err := tx.From()
	if err != nil {
		return nil, fmt.Errorf("vm: recover sender: %w", err)
	}
	sender := state.GetAccount(from)
	if sender.Nonce != tx.Nonce {
		return nil, fmt.Errorf("vm: nonce mismatch: account has %d, tx has %d", sender.Nonce, tx.Nonce)
	}
	cost := new(big.Int).Add(new(big.Int).SetUint64(tx.Value), new(big.Int).Mul(new(big.Int).SetUint64(tx.GasPrice), new(big.Int).SetUint64(tx.Gas)))
	if sender.Balance.Cmp(cost) < 0 {
		return nil, fmt.Errorf("vm: insufficient balance")
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, cost)
	sender.Nonce++
	state.SetAccount(from, sender)

	recipient := state.GetAccount(tx.To)
	if recipient.Balance == nil {
		recipient.Balance = big.NewInt(0)
	}
	recipient.Balance = new(big.Int).Add(recipient.Balance, new(big.Int).SetUint64(tx.Value))
	state.SetAccount(tx.To, recipient)

	return &Receipt{TxHash: tx.Hash(), Status: true, GasUsed: tx.Gas}, nil
}
