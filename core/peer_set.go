package core

import "sync"

// DefaultMaxPeers is the default cap on tracked peers.
const DefaultMaxPeers = 12

// PeerSet owns the node's view of its connected peers, keyed by
// (address, port).
type PeerSet struct {
	mu       sync.Mutex
	maxPeers int
	peers    map[PeerKey]*Peer
	selfAddr string
	selfPort string
}

// NewPeerSet constructs an empty set. selfAddr/selfPort identify this
// node's own externally-visible address, used to rewrite self-referential
// peer records to loopback so the node never re-dials itself.
func NewPeerSet(maxPeers int, selfAddr, selfPort string) *PeerSet {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}
	return &PeerSet{maxPeers: maxPeers, peers: map[PeerKey]*Peer{}, selfAddr: selfAddr, selfPort: selfPort}
}

// rewriteSelf replaces a peer's address with the loopback form if it
// reports our own external address, so a node never re-dials itself.
func (s *PeerSet) rewriteSelf(p *Peer) {
	if p.Address == s.selfAddr && p.Port == s.selfPort {
		p.Address = "127.0.0.1"
	}
}

// AddPeer inserts p, rewriting self-references to loopback first.
// Returns false (a no-op) if the peer set is already full or the peer
// is already present.
func (s *PeerSet) AddPeer(p *Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewriteSelf(p)
	key := p.Key()
	if _, exists := s.peers[key]; exists {
		return false
	}
	if len(s.peers) >= s.maxPeers {
		return false
	}
	s.peers[key] = p
	return true
}

// GetPeer returns the tracked peer for key, if any.
func (s *PeerSet) GetPeer(key PeerKey) (*Peer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[key]
	return p, ok
}

// RemovePeer drops key from the set, reporting whether it was present.
func (s *PeerSet) RemovePeer(key PeerKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[key]; !ok {
		return false
	}
	delete(s.peers, key)
	return true
}

// NumberOfPeers returns the current peer count.
func (s *PeerSet) NumberOfPeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// MaxPeersReached reports whether the set is at capacity.
func (s *PeerSet) MaxPeersReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers) >= s.maxPeers
}

// All returns a snapshot slice of every tracked peer.
func (s *PeerSet) All() []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

// Excluding returns every tracked peer other than except, used to build
// an ADDRESS response that omits the requester's own entry.
func (s *PeerSet) Excluding(except PeerKey) []*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peer, 0, len(s.peers))
	for k, p := range s.peers {
		if k != except {
			out = append(out, p)
		}
	}
	return out
}
