package core

import (
	"encoding/hex"
	"fmt"
	"net"
	"time"
)

// Address is a 20-byte account identifier, matching the width of an
// Ethereum-style account address.
type Address [20]byte

// Hash is a 32-byte cryptographic digest.
type Hash [32]byte

// Hex returns the 0x-prefixed hex encoding of the address.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// Hex returns the 0x-prefixed hex encoding of the hash.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }

// Bytes returns a freshly allocated copy of the hash's bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, len(h))
	copy(b, h[:])
	return b
}

// BytesToAddress right-aligns b into a 20-byte Address, truncating from the
// left if b is longer.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > len(a) {
		b = b[len(b)-len(a):]
	}
	copy(a[len(a)-len(b):], b)
	return a
}

// BytesToHash right-aligns b into a 32-byte Hash, truncating from the left
// if b is longer.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// NodeID identifies a peer independent of its current network address.
type NodeID string

// PeerKey is the (address, port) pair that uniquely identifies a peer in
// the peer set.
type PeerKey struct {
	Address string
	Port    string
}

func (k PeerKey) String() string { return net.JoinHostPort(k.Address, k.Port) }

// Peer records everything the node tracks about a remote participant.
type Peer struct {
	Address     string    `json:"address"`
	Port        string    `json:"port"`
	Version     string    `json:"version"`
	Software    string    `json:"software"`
	BytesSent   uint64    `json:"bytes_sent"`
	BytesRecv   uint64    `json:"bytes_recv"`
	LastSeen    time.Time `json:"last_seen"`
	PingMillis  float64   `json:"ping_ms"`
	BanScore    int       `json:"ban_score"`
}

// Key returns the peer's identity, used as the peer set's map key.
func (p *Peer) Key() PeerKey { return PeerKey{Address: p.Address, Port: p.Port} }

// Equal implements peer equality by (address, port) alone — the rest
// of a Peer's fields are mutable metadata, not identity.
func (p *Peer) Equal(o *Peer) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.Address == o.Address && p.Port == o.Port
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s:%s(v%s)", p.Address, p.Port, p.Version)
}
