package core

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Transaction is the unsigned payload a sender authorizes, matching the
// fields the wire TRANSACTION schema carries.
type Transaction struct {
	Nonce    uint64
	GasPrice uint64
	Gas      uint64
	To       Address
	Value    uint64
	Data     []byte
}

// SignedTransaction is a Transaction plus its recoverable ECDSA signature.
// The sender address is never transmitted; it is always recovered from
// (hash, V, R, S).
type SignedTransaction struct {
	Transaction
	V uint64
	R *big.Int
	S *big.Int

	hashOnce sync.Once
	hashVal  Hash

	fromOnce sync.Once
	fromVal  Address
	fromErr  error
}

type txSigningRLP struct {
	Nonce    uint64
	GasPrice uint64
	Gas      uint64
	To       Address
	Value    uint64
	Data     []byte
}

// SigningHash returns the digest signed by the sender: keccak256 of the RLP
// encoding of the unsigned fields, excluding V/R/S.
func (tx *Transaction) SigningHash() Hash {
	b, err := rlp.EncodeToBytes(txSigningRLP{
		Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas,
		To: tx.To, Value: tx.Value, Data: tx.Data,
	})
	if err != nil {
		panic(fmt.Sprintf("transaction: rlp encode: %v", err))
	}
	return BytesToHash(crypto.Keccak256(b))
}

// SignTransaction signs tx with the given ECDSA private key, producing a
// SignedTransaction whose sender recovers back to the key's address.
func SignTransaction(tx Transaction, priv *ecdsa.PrivateKey) (*SignedTransaction, error) {
	sig, err := crypto.Sign(tx.SigningHash().Bytes(), priv)
	if err != nil {
		return nil, fmt.Errorf("transaction: sign: %w", err)
	}
	return &SignedTransaction{
		Transaction: tx,
		V:           uint64(sig[64]),
		R:           new(big.Int).SetBytes(sig[:32]),
		S:           new(big.Int).SetBytes(sig[32:64]),
	}, nil
}

// Hash returns the memoized hash of the signed transaction, covering every
// field including the signature. This is the identifier stored in the
// freezer's transaction column and echoed in receipts.
func (tx *SignedTransaction) Hash() Hash {
	tx.hashOnce.Do(func() {
		type full struct {
			Nonce    uint64
			GasPrice uint64
			Gas      uint64
			To       Address
			Value    uint64
			Data     []byte
			V        uint64
			R        *big.Int
			S        *big.Int
		}
		b, err := rlp.EncodeToBytes(full{
			Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas, To: tx.To,
			Value: tx.Value, Data: tx.Data, V: tx.V, R: tx.R, S: tx.S,
		})
		if err != nil {
			panic(fmt.Sprintf("transaction: rlp encode signed: %v", err))
		}
		tx.hashVal = BytesToHash(crypto.Keccak256(b))
	})
	return tx.hashVal
}

// From recovers and memoizes the sender address from the signature.
func (tx *SignedTransaction) From() (Address, error) {
	tx.fromOnce.Do(func() {
		tx.fromVal, tx.fromErr = recoverSender(tx)
	})
	return tx.fromVal, tx.fromErr
}

// ToPayload renders the signed transaction as its hex-encoded wire form.
func (tx *SignedTransaction) ToPayload() TransactionPayload {
	return TransactionPayload{
		Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas,
		To: tx.To.Hex(), Value: tx.Value, Data: "0x" + bytesToHexNoPrefix(tx.Data),
		V: tx.V, R: "0x" + bigToHexNoPrefix(tx.R), S: "0x" + bigToHexNoPrefix(tx.S),
	}
}

// TransactionFromPayload reconstructs a SignedTransaction from its wire form.
func TransactionFromPayload(p TransactionPayload) (*SignedTransaction, error) {
	to, err := decodeAddress(p.To)
	if err != nil {
		return nil, fmt.Errorf("transaction: to: %w", err)
	}
	data, err := hexDecode(p.Data)
	if err != nil {
		return nil, fmt.Errorf("transaction: data: %w", err)
	}
	r, err := hexToBig(p.R)
	if err != nil {
		return nil, fmt.Errorf("transaction: r: %w", err)
	}
	s, err := hexToBig(p.S)
	if err != nil {
		return nil, fmt.Errorf("transaction: s: %w", err)
	}
	return &SignedTransaction{
		Transaction: Transaction{Nonce: p.Nonce, GasPrice: p.GasPrice, Gas: p.Gas, To: to, Value: p.Value, Data: data},
		V:           p.V, R: r, S: s,
	}, nil
}

// recoverSender reconstructs the 65-byte (R||S||V) signature and recovers
// the signing address via secp256k1 public key recovery, the same primitive
// the leader-election campaign check uses.
func recoverSender(tx *SignedTransaction) (Address, error) {
	sig := make([]byte, 65)
	rBytes := tx.R.Bytes()
	sBytes := tx.S.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	v := tx.V
	if v >= 27 {
		v -= 27
	}
	sig[64] = byte(v)
	pub, err := crypto.SigToPub(tx.SigningHash().Bytes(), sig)
	if err != nil {
		return Address{}, fmt.Errorf("transaction: recover sender: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func bytesToHexNoPrefix(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func bigToHexNoPrefix(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.Text(16)
}

func hexToBig(s string) (*big.Int, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if s == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex integer %q", s)
	}
	return n, nil
}
