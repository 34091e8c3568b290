package core

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/crypto"
)

func genTestKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

func pubkeyAddress(priv *ecdsa.PrivateKey) Address {
	return crypto.PubkeyToAddress(priv.PublicKey)
}
