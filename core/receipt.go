package core

import "math/big"

// Receipt is produced by the VM for one executed transaction. Execution
// semantics (logs, status derivation) belong to the VM; the chain only
// folds a receipt's bloom into its block's header bloom.
type Receipt struct {
	TxHash  Hash
	Status  bool
	GasUsed uint64
	Bloom   Bloom
	Logs    [][]byte
}

// --- RLP wire shapes for the freezer's transactions/receipts columns ---

type signedTxRLP struct {
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

func signedTxsToRLP(txs []*SignedTransaction) []signedTxRLP {
	out := make([]signedTxRLP, len(txs))
	for i, tx := range txs {
		out[i] = signedTxRLP{
			Nonce: tx.Nonce, GasPrice: tx.GasPrice, Gas: tx.Gas, To: tx.To,
			Value: tx.Value, Data: tx.Data, V: tx.V, R: tx.R, S: tx.S,
		}
	}
	return out
}

func signedTxsFromRLP(in []signedTxRLP) []*SignedTransaction {
	out := make([]*SignedTransaction, len(in))
	for i, r := range in {
		out[i] = &SignedTransaction{
			Transaction: Transaction{Nonce: r.Nonce, GasPrice: r.GasPrice, Gas: r.Gas, To: r.To, Value: r.Value, Data: r.Data},
			V:           r.V, R: r.R, S: r.S,
		}
	}
	return out
}

type receiptRLP struct {
	TxHash  Hash
	Status  bool
	GasUsed uint64
	Bloom   Bloom
	Logs    [][]byte
}

func receiptsToRLP(receipts []*Receipt) []receiptRLP {
	out := make([]receiptRLP, len(receipts))
	for i, r := range receipts {
		out[i] = receiptRLP{TxHash: r.TxHash, Status: r.Status, GasUsed: r.GasUsed, Bloom: r.Bloom, Logs: r.Logs}
	}
	return out
}

func receiptsFromRLP(in []receiptRLP) []*Receipt {
	out := make([]*Receipt, len(in))
	for i, r := range in {
		out[i] = &Receipt{TxHash: r.TxHash, Status: r.Status, GasUsed: r.GasUsed, Bloom: r.Bloom, Logs: r.Logs}
	}
	return out
}
