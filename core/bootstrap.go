package core

import "time"

// DefaultBootstrapTimeout bounds how long a bootstrap phase waits for
// the peer set to saturate before giving up.
const DefaultBootstrapTimeout = 5 * time.Second

// DefaultBootstrapPollInterval is how often a bootstrap phase re-checks
// MaxPeersReached while waiting.
const DefaultBootstrapPollInterval = 3 * time.Second

// Bootstrapper drives Node through the two-phase peer discovery
// procedure: known peers first, then configured seed peers if the node
// is still short of max_peers.
type Bootstrapper struct {
	Node          *Node
	Timeout       time.Duration
	PollInterval  time.Duration
}

// NewBootstrapper constructs a Bootstrapper with the default timeout
// and poll interval.
func NewBootstrapper(node *Node) *Bootstrapper {
	return &Bootstrapper{Node: node, Timeout: DefaultBootstrapTimeout, PollInterval: DefaultBootstrapPollInterval}
}

// Run executes from_peers(known) then, if the node is still under
// max_peers, from_seeds(seeds).
func (b *Bootstrapper) Run(known, seeds []*Peer) {
	b.FromPeers(known)
	if !b.Node.MaxPeersReached() {
		b.FromSeeds(seeds)
	}
}

// FromPeers broadcasts VERSION to known, waits for the peer set to
// saturate, and — if it's still short and known is non-empty —
// broadcasts ADDRESS and waits again.
func (b *Bootstrapper) FromPeers(known []*Peer) {
	b.runPhase(known)
}

// FromSeeds runs the identical phase procedure against the configured
// seed peers.
func (b *Bootstrapper) FromSeeds(seeds []*Peer) {
	b.runPhase(seeds)
}

func (b *Bootstrapper) runPhase(peers []*Peer) {
	if len(peers) == 0 {
		return
	}
	b.Node.Broadcast(FlagVersion, peers, b.Node.SelfVersionPayload())
	if b.waitForSaturation() {
		return
	}
	if len(peers) > 0 {
		b.Node.Broadcast(FlagAddress, peers, struct{}{})
		b.waitForSaturation()
	}
}

// waitForSaturation polls MaxPeersReached every PollInterval until it
// holds or Timeout elapses, returning whether it was reached.
func (b *Bootstrapper) waitForSaturation() bool {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultBootstrapTimeout
	}
	interval := b.PollInterval
	if interval <= 0 {
		interval = DefaultBootstrapPollInterval
	}
	deadline := time.Now().Add(timeout)
	for {
		if b.Node.MaxPeersReached() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
